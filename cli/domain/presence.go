package domain

import "sort"

type Viewer struct {
	ID          string
	DisplayName string
}

// Presence tracks the viewer roster. The count can run ahead of the roster
// when the hub reports viewers that joined before this session connected.
type Presence struct {
	viewers map[string]Viewer
	banned  map[string]struct{}
	left    map[string]struct{}
	count   int
}

func NewPresence() *Presence {
	return &Presence{
		viewers: make(map[string]Viewer),
		banned:  make(map[string]struct{}),
		left:    make(map[string]struct{}),
	}
}

// Join adds a viewer. Repeated joins and joins of banned viewers are ignored.
func (p *Presence) Join(v Viewer) bool {
	if v.ID == "" {
		return false
	}
	if _, banned := p.banned[v.ID]; banned {
		return false
	}
	if _, exists := p.viewers[v.ID]; exists {
		return false
	}
	if v.DisplayName == "" {
		v.DisplayName = v.ID
	}
	delete(p.left, v.ID)
	p.viewers[v.ID] = v
	p.count++
	return true
}

// Leave removes a viewer. A viewer outside the roster only lowers the part
// of the count the roster does not explain, and only once per id.
func (p *Presence) Leave(viewerID string) bool {
	if viewerID == "" {
		return false
	}
	if _, exists := p.viewers[viewerID]; exists {
		delete(p.viewers, viewerID)
		p.left[viewerID] = struct{}{}
		p.count--
		return true
	}
	if _, gone := p.left[viewerID]; gone {
		return false
	}
	p.left[viewerID] = struct{}{}
	if p.count > len(p.viewers) {
		p.count--
	}
	return false
}

// ConfirmBan removes a viewer once the hub has confirmed the ban.
func (p *Presence) ConfirmBan(viewerID string) bool {
	if viewerID == "" {
		return false
	}
	p.banned[viewerID] = struct{}{}
	if _, exists := p.viewers[viewerID]; !exists {
		return false
	}
	delete(p.viewers, viewerID)
	if p.count > 0 {
		p.count--
	}
	return true
}

// SetCount applies an authoritative count from the hub.
func (p *Presence) SetCount(n int) {
	p.count = max(n, len(p.viewers))
}

func (p *Presence) Count() int {
	return p.count
}

func (p *Presence) IsBanned(viewerID string) bool {
	_, ok := p.banned[viewerID]
	return ok
}

func (p *Presence) Has(viewerID string) bool {
	_, ok := p.viewers[viewerID]
	return ok
}

func (p *Presence) Viewers() []Viewer {
	out := make([]Viewer, 0, len(p.viewers))
	for _, v := range p.viewers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
