package v12

import "fmt"

// NetworkError is returned when a call could not reach the bot at all.
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("onebot v12 network error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("onebot v12 network error: %s", e.Message)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ApiNotAvailable is returned when calling an action on a bot with no
// transport that can carry API calls.
type ApiNotAvailable struct {
	Action string
}

func (e *ApiNotAvailable) Error() string {
	return fmt.Sprintf("onebot v12: api %q not available for this connection", e.Action)
}

// ActionMissingField is returned when a call reply lacks one of the
// required keys (status, retcode, data, message).
type ActionMissingField struct {
	Field string
}

func (e *ActionMissingField) Error() string {
	return fmt.Sprintf("onebot v12: action reply missing required field %q", e.Field)
}

// ActionFailed is the generic status=="failed" error, carrying the full
// reply mapping. ActionFailedWithRetcode embeds it for retcode-specific
// subclasses.
type ActionFailed struct {
	Retcode int64
	Info    map[string]any
}

func (e *ActionFailed) Error() string {
	return fmt.Sprintf("onebot v12: action failed, retcode=%d: %v", e.Retcode, e.Info)
}

// RetcodeClass names the family a failing retcode was resolved to by the
// longest-prefix match against retcodePrefixes.
type RetcodeClass string

const (
	RetcodeClassRequest  RetcodeClass = "request"
	RetcodeClassHandler  RetcodeClass = "handler"
	RetcodeClassStorage  RetcodeClass = "storage"
	RetcodeClassFS       RetcodeClass = "filesystem"
	RetcodeClassNetwork  RetcodeClass = "network"
	RetcodeClassPlatform RetcodeClass = "platform"
	RetcodeClassLogic    RetcodeClass = "logic"
	RetcodeClassTired    RetcodeClass = "tired"
	RetcodeClassExtended RetcodeClass = "extended"
	RetcodeClassGeneric  RetcodeClass = "generic"
)

// ActionFailedWithRetcode is the concrete, class-resolved failure raised
// when the reply's retcode falls under one of the seeded prefixes.
type ActionFailedWithRetcode struct {
	ActionFailed
	Class RetcodeClass
}

func (e *ActionFailedWithRetcode) Error() string {
	return fmt.Sprintf("onebot v12: action failed (%s), retcode=%d: %v", e.Class, e.Retcode, e.Info)
}

// retcodePrefixes maps zero-padded 5-digit retcode prefixes to their
// class, longest prefix first so the lookup in classifyRetcode can match
// greedily. Seeded per the upstream retcode convention: 1xxxx request
// errors, 2xxxx handler errors, 3xxxx execution errors subdivided by
// subsystem, 6xxxx-9xxxx extended/implementation-defined errors.
var retcodePrefixes = []struct {
	prefix string
	class  RetcodeClass
}{
	{"10", RetcodeClassRequest},
	{"20", RetcodeClassHandler},
	{"31", RetcodeClassStorage},
	{"32", RetcodeClassFS},
	{"33", RetcodeClassNetwork},
	{"34", RetcodeClassPlatform},
	{"35", RetcodeClassLogic},
	{"36", RetcodeClassTired},
	{"6", RetcodeClassExtended},
	{"7", RetcodeClassExtended},
	{"8", RetcodeClassExtended},
	{"9", RetcodeClassExtended},
}

// classifyRetcode resolves retcode to a class by longest-prefix match of
// its zero-padded 5-digit form against retcodePrefixes. Retcodes of 100000
// or greater, and any retcode matching no known prefix, resolve to
// RetcodeClassGeneric.
func classifyRetcode(retcode int64) RetcodeClass {
	if retcode < 0 || retcode >= 100000 {
		return RetcodeClassGeneric
	}
	padded := fmt.Sprintf("%05d", retcode)
	best := RetcodeClassGeneric
	bestLen := 0
	for _, p := range retcodePrefixes {
		if len(p.prefix) > bestLen && len(padded) >= len(p.prefix) && padded[:len(p.prefix)] == p.prefix {
			best = p.class
			bestLen = len(p.prefix)
		}
	}
	return best
}

// resolveActionFailed builds the concrete error for a status=="failed"
// reply: an ActionFailedWithRetcode when the retcode resolves to a known
// class, else a plain ActionFailed.
func resolveActionFailed(retcode int64, info map[string]any) error {
	base := ActionFailed{Retcode: retcode, Info: info}
	class := classifyRetcode(retcode)
	if class == RetcodeClassGeneric {
		return &base
	}
	return &ActionFailedWithRetcode{ActionFailed: base, Class: class}
}
