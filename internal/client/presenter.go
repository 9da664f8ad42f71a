package client

import "grovecraft.io/internal/sim/store"

// Presenter owns presentation-side resources (sprites, sounds). It is only
// ever called from the goroutine that runs Frame.
type Presenter interface {
	ResourceCreated(r store.Resource)
	ResourceDisposed(id string)
	ItemCreated(it store.Item)
	ItemDisposed(id string)
	PlantedCreated(p store.Planted)
	PlantedDisposed(id string)
	PlayerLeft(id string)
}

// NopPresenter ignores every call.
type NopPresenter struct{}

func (NopPresenter) ResourceCreated(store.Resource) {}
func (NopPresenter) ResourceDisposed(string)        {}
func (NopPresenter) ItemCreated(store.Item)         {}
func (NopPresenter) ItemDisposed(string)            {}
func (NopPresenter) PlantedCreated(store.Planted)   {}
func (NopPresenter) PlantedDisposed(string)         {}
func (NopPresenter) PlayerLeft(string)              {}
