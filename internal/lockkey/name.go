package lockkey

import "strings"

// Separator joins the parts of a lock name.
const Separator = ":"

// Purpose tags. TagRepeatExecuteLimit is reserved for idempotency guards so
// their names never collide with general-purpose locks.
const (
	TagServiceLock        = "SERVICE_LOCK"
	TagRepeatExecuteLimit = "REPEAT_EXECUTE_LIMIT"
)

// Namer builds lock names scoped to one deployment.
type Namer struct {
	Prefix string
}

// Name returns {prefix}-{tag}:{operation}:{k1}:{k2}... Empty keys are
// skipped.
func (n Namer) Name(tag, operation string, keys ...string) string {
	var b strings.Builder
	b.WriteString(n.Prefix)
	b.WriteString("-")
	b.WriteString(tag)
	b.WriteString(Separator)
	b.WriteString(operation)
	for _, k := range keys {
		if k == "" {
			continue
		}
		b.WriteString(Separator)
		b.WriteString(k)
	}
	return b.String()
}

// Resolve is shorthand for Name(tag, operation, r.Resolve(args)...).
func (n Namer) Resolve(tag, operation string, r *Resolver, args Args) string {
	return n.Name(tag, operation, r.Resolve(args)...)
}
