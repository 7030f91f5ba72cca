package mapslink

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Every kind maps to its own user-facing message.
type Kind string

// Failure kinds surfaced by Resolve.
const (
	KindInvalidURL          Kind = "invalid_url"
	KindLinkExpansionFailed Kind = "link_expansion_failed"
	KindNetworkTimeout      Kind = "network_timeout"
	KindUnresolvableLink    Kind = "unresolvable_link"
	KindPlaceNotFound       Kind = "place_not_found"
	KindDetailsUnavailable  Kind = "details_unavailable"
)

var messages = map[Kind]string{
	KindInvalidURL:          "That doesn't look like a Google Maps link.",
	KindLinkExpansionFailed: "Could not resolve the shortened link. Please try again.",
	KindNetworkTimeout:      "Resolving the shortened link timed out. Please try again.",
	KindUnresolvableLink:    "Could not find a place in that link. Try sharing the link straight from the place page.",
	KindPlaceNotFound:       "No matching place was found for that link.",
	KindDetailsUnavailable:  "Place details are unavailable right now.",
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrInvalidURL          = &Error{Kind: KindInvalidURL}
	ErrLinkExpansionFailed = &Error{Kind: KindLinkExpansionFailed}
	ErrNetworkTimeout      = &Error{Kind: KindNetworkTimeout}
	ErrUnresolvableLink    = &Error{Kind: KindUnresolvableLink}
	ErrPlaceNotFound       = &Error{Kind: KindPlaceNotFound}
	ErrDetailsUnavailable  = &Error{Kind: KindDetailsUnavailable}
)

// Error is a terminal pipeline failure.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func newError(kind Kind, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Message is the user-displayable text for the failure.
func (e *Error) Message() string {
	return MessageFor(e.Kind)
}

// MessageFor returns the user-displayable text for a kind.
func MessageFor(kind Kind) string {
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return "Could not import that link."
}

// KindOf extracts the kind of a pipeline error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
