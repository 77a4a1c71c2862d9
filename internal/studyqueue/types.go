package studyqueue

import (
	"bytes"
	"math"
	"strconv"
	"time"
)

// StudyQueue is the body of GET /api/user/<key>/study_queue.
// Either block may be missing; callers check for nil.
type StudyQueue struct {
	UserInformation      *UserInformation      `json:"user_information"`
	RequestedInformation *RequestedInformation `json:"requested_information"`
}

type UserInformation struct {
	Username string `json:"username"`
}

type RequestedInformation struct {
	ReviewsAvailable int   `json:"reviews_available"`
	NextReviewDate   Epoch `json:"next_review_date"`
}

// Epoch is a point in time sent as seconds since the Unix epoch. The service
// has been seen sending both integers and floats, and null when nothing is queued.
type Epoch int64

func (e *Epoch) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(bytes.Trim(b, `"`)), 64)
	if err != nil {
		return err
	}
	*e = Epoch(math.Floor(f))
	return nil
}

// Time converts the epoch to a time.Time.
func (e Epoch) Time() time.Time { return time.Unix(int64(e), 0) }
