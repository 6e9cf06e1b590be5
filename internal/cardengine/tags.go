package cardengine

import "strings"

// Display tags rendered in place of a value when computation fails.
// Prefixed tags carry the first 20 characters of the underlying message.
const (
	TagModelNotFound = "Model Not Found"

	tagDomain  = "Domain Error: "
	tagField   = "Field Error: "
	tagFormula = "Formula Error: "
	tagGeneric = "Error: "

	// msgLimit bounds the embedded message so a tag stays card-sized.
	msgLimit = 20
)

func tagged(prefix string, err error) string {
	return taggedMsg(prefix, err.Error())
}

func taggedMsg(prefix, msg string) string {
	if r := []rune(msg); len(r) > msgLimit {
		msg = string(r[:msgLimit])
	}
	return prefix + msg
}

// outcomeFor classifies a display value for the computation counter.
func outcomeFor(result string) string {
	switch {
	case result == TagModelNotFound:
		return "model_not_found"
	case strings.HasPrefix(result, tagDomain):
		return "domain_error"
	case strings.HasPrefix(result, tagField):
		return "field_error"
	case strings.HasPrefix(result, tagFormula):
		return "formula_error"
	case strings.HasPrefix(result, tagGeneric):
		return "error"
	default:
		return "ok"
	}
}
