package services

import (
	"context"
	"fmt"

	"github.com/restful-users/apiserver/types"
)

// DefaultUsers returns the sample directory loaded into an empty store.
func DefaultUsers() []types.User {
	return []types.User{
		{
			Name:     "Leanne Graham",
			Username: "Bret",
			Email:    "Sincere@april.biz",
			Phone:    "1-770-736-8031 x56442",
			Website:  "hildegard.org",
			Address: &types.Address{
				Street:  "Kulas Light",
				Suite:   "Apt. 556",
				City:    "Gwenborough",
				Zipcode: "92998-3874",
				Geo:     &types.Geo{Lat: "-37.3159", Lng: "81.1496"},
			},
			Company: &types.Company{
				Name:        "Romaguera-Crona",
				CatchPhrase: "Multi-layered client-server neural-net",
				BS:          "harness real-time e-markets",
			},
		},
		{
			Name:     "Ervin Howell",
			Username: "Antonette",
			Email:    "Shanna@melissa.tv",
			Phone:    "010-692-6593 x09125",
			Website:  "anastasia.net",
			Address: &types.Address{
				Street:  "Victor Plains",
				Suite:   "Suite 879",
				City:    "Wisokyburgh",
				Zipcode: "90566-7771",
				Geo:     &types.Geo{Lat: "-43.9509", Lng: "-34.4618"},
			},
			Company: &types.Company{
				Name:        "Deckow-Crist",
				CatchPhrase: "Proactive didactic contingency",
				BS:          "synergize scalable supply-chains",
			},
		},
		{
			Name:     "Clementine Bauch",
			Username: "Samantha",
			Email:    "Nathan@yesenia.net",
			Phone:    "1-463-123-4447",
			Website:  "ramiro.info",
			Address: &types.Address{
				Street:  "Douglas Extension",
				Suite:   "Suite 847",
				City:    "McKenziehaven",
				Zipcode: "59590-4157",
				Geo:     &types.Geo{Lat: "-68.6102", Lng: "-47.0653"},
			},
			Company: &types.Company{
				Name:        "Romaguera-Jacobson",
				CatchPhrase: "Face to face bifurcated interface",
				BS:          "e-enable strategic applications",
			},
		},
	}
}

// SeedDefaults loads DefaultUsers when the store is empty and returns how
// many users were inserted.
func (s *UserService) SeedDefaults(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		s.logger.Debug().Int64("existing", count).Msg("store not empty, skipping seed")
		return 0, nil
	}

	inserted := 0
	for _, user := range DefaultUsers() {
		if _, err := s.Create(ctx, user); err != nil {
			return inserted, fmt.Errorf("seed %s: %w", user.Username, err)
		}
		inserted++
	}

	s.logger.Info().Int("inserted", inserted).Msg("seeded default users")
	return inserted, nil
}
