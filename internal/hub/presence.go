package hub

// AnonymousName is attributed to connections that send messages before
// joining with a display name.
const AnonymousName = "Anonymous"

// presenceRegistry maps connection ids to display names and remembers join
// order. It is not safe for concurrent use on its own; the hub's mutex is the
// single serialization point for all registry access.
type presenceRegistry struct {
	names map[string]string
	order []string
}

func newPresenceRegistry() *presenceRegistry {
	return &presenceRegistry{names: make(map[string]string)}
}

// set records the display name for a connection. A rejoin within the same
// session overwrites the name but keeps the original position in join order.
func (p *presenceRegistry) set(id, name string) {
	if _, ok := p.names[id]; !ok {
		p.order = append(p.order, id)
	}
	p.names[id] = name
}

// remove deletes a connection's entry, reporting the name it had and whether
// an entry existed.
func (p *presenceRegistry) remove(id string) (string, bool) {
	name, ok := p.names[id]
	if !ok {
		return "", false
	}
	delete(p.names, id)
	for i, other := range p.order {
		if other == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return name, true
}

// name resolves a connection's display name, defaulting to AnonymousName for
// connections that have not joined.
func (p *presenceRegistry) name(id string) string {
	if name, ok := p.names[id]; ok {
		return name
	}
	return AnonymousName
}

// size is the authoritative joined-user count.
func (p *presenceRegistry) size() int {
	return len(p.names)
}

// list returns all display names in join order.
func (p *presenceRegistry) list() []string {
	names := make([]string, 0, len(p.order))
	for _, id := range p.order {
		names = append(names, p.names[id])
	}
	return names
}
