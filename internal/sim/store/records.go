package store

import "fmt"

// Records is the plain, serializable form of a Store used at the
// persistence boundary.
type Records struct {
	Seed      int64
	Resources []Resource
	Items     []Item
	Planted   []Planted
	Players   []Player
	Cleared   []string
	Weather   []WeatherZone
}

func (s *Store) Export() Records {
	seed, _ := s.Seed()
	return Records{
		Seed:      seed,
		Resources: s.Resources(),
		Items:     s.Items(),
		Planted:   s.AllPlanted(),
		Players:   s.Players(),
		Cleared:   s.Cleared(),
		Weather:   s.Weather(),
	}
}

// Import replaces the content of s with r. The seed of r must match the
// store's seed if one is already set.
func (s *Store) Import(r Records) error {
	if err := s.SetSeed(r.Seed); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	s.Reset()
	for _, v := range r.Resources {
		s.PutResource(v)
	}
	for _, v := range r.Items {
		s.PutItem(v)
	}
	for _, v := range r.Planted {
		s.PutPlanted(v)
	}
	for _, v := range r.Players {
		s.PutPlayer(v)
	}
	for _, id := range r.Cleared {
		s.Clear(id)
	}
	s.SetWeather(r.Weather)
	return nil
}
