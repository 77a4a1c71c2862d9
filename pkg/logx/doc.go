// Package logx is reviewbadge's structured logging: a small value-type
// Logger over zerolog.
//
// The daemon usually runs under systemd, so console output drops colors when
// stderr is not a terminal and the journal adds its own timestamps. The
// optional file sink writes JSON lines.
package logx
