// Package notifier shows the "new reviews" notification.
//
// A Service fans a Notification out to one or more sinks: the freedesktop
// notification daemon over D-Bus, and optionally a Telegram chat. Showing a
// notification with an ID that is already on screen replaces it; Clear takes
// it down everywhere.
//
// # Clicks
//
// The desktop sink listens for ActionInvoked signals and publishes the ID of
// the clicked notification on the event bus (topic notification.clicked).
// Telegram messages carry a URL button instead, so they never report clicks.
//
// # History
//
// The service keeps a short in-memory history of shown notifications for the
// status output and tests.
package notifier
