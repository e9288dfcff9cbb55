package digest

import "errors"

var (
	// ErrSessionExpired means the action targeted a session past its TTL.
	ErrSessionExpired = errors.New("digest session expired")

	// ErrSessionSuperseded means a newer digest replaced the targeted session.
	ErrSessionSuperseded = errors.New("digest session superseded")

	// ErrNoMoreItems means the cursor has passed the last item.
	ErrNoMoreItems = errors.New("no more digest items")
)
