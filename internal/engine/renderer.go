package engine

import "github.com/louisbranch/daylists/internal/changelog"

// Change hints how much of the projection changed since the last render,
// so a renderer can choose a cheap partial update over a full redraw. The
// hint is an optimization only; the entity sequence is authoritative
// regardless.
type Change string

const (
	// ChangeNone means the projection is unchanged.
	ChangeNone Change = "none"
	// ChangeStatusOnly means entity fields changed but the id sequence
	// did not.
	ChangeStatusOnly Change = "status-only"
	// ChangeStructural means entities appeared, disappeared, or moved.
	ChangeStructural Change = "structural"
)

// Renderer receives projection updates. It owns all visual output and
// never mutates the changelog cache; every mutation flows through
// Engine.Submit.
type Renderer interface {
	Render(entities []changelog.Entity, change Change)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(entities []changelog.Entity, change Change)

// Render implements Renderer.
func (f RendererFunc) Render(entities []changelog.Entity, change Change) {
	f(entities, change)
}
