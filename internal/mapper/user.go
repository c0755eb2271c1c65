// Package mapper converts between the wire-facing types.User and the
// persisted store.UserEntity. Every conversion deep-copies nested values,
// so the two graphs never share pointers.
package mapper

import (
	"github.com/restful-users/apiserver/internal/store"
	"github.com/restful-users/apiserver/types"
)

// ToPublic converts a persisted user. A nil entity maps to nil.
func ToPublic(entity *store.UserEntity) *types.User {
	if entity == nil {
		return nil
	}

	user := &types.User{
		ID:       entity.ID,
		Name:     entity.Name,
		Username: entity.Username,
		Email:    entity.Email,
		Phone:    entity.Phone,
		Website:  entity.Website,
	}

	if entity.Address != nil {
		user.Address = &types.Address{
			Street:  entity.Address.Street,
			Suite:   entity.Address.Suite,
			City:    entity.Address.City,
			Zipcode: entity.Address.Zipcode,
		}
		if entity.Address.Geo != nil {
			user.Address.Geo = &types.Geo{
				Lat: entity.Address.Geo.Lat,
				Lng: entity.Address.Geo.Lng,
			}
		}
	}

	if entity.Company != nil {
		user.Company = &types.Company{
			Name:        entity.Company.Name,
			CatchPhrase: entity.Company.CatchPhrase,
			BS:          entity.Company.BS,
		}
	}

	return user
}

// ToPublicList converts a slice of persisted users, preserving order.
func ToPublicList(entities []store.UserEntity) []types.User {
	users := make([]types.User, 0, len(entities))
	for i := range entities {
		users = append(users, *ToPublic(&entities[i]))
	}
	return users
}

// ToEntity converts a wire user into a fresh entity. A nil user maps to nil.
func ToEntity(user *types.User) *store.UserEntity {
	if user == nil {
		return nil
	}

	entity := &store.UserEntity{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
		Email:    user.Email,
		Phone:    user.Phone,
		Website:  user.Website,
	}

	if user.Address != nil {
		entity.Address = &store.AddressEntity{}
		applyAddress(entity.Address, user.Address)
	}

	if user.Company != nil {
		entity.Company = &store.CompanyEntity{}
		applyCompany(entity.Company, user.Company)
	}

	return entity
}

// ApplyUpdate merges patch into a copy of current and returns the copy.
// Scalar fields are overwritten. A nil nested value in patch leaves the
// stored one untouched; a non-nil one overwrites the stored record's
// fields, creating the record only when current has none. Identity
// fields (ids, owner keys, timestamps) always come from current.
func ApplyUpdate(current store.UserEntity, patch types.User) store.UserEntity {
	next := Clone(current)

	next.Name = patch.Name
	next.Username = patch.Username
	next.Email = patch.Email
	next.Phone = patch.Phone
	next.Website = patch.Website

	if patch.Address != nil {
		if next.Address == nil {
			next.Address = &store.AddressEntity{UserID: next.ID}
		}
		applyAddress(next.Address, patch.Address)
	}

	if patch.Company != nil {
		if next.Company == nil {
			next.Company = &store.CompanyEntity{UserID: next.ID}
		}
		applyCompany(next.Company, patch.Company)
	}

	return next
}

// Clone deep-copies an entity including its nested records.
func Clone(entity store.UserEntity) store.UserEntity {
	if entity.Address != nil {
		address := *entity.Address
		if address.Geo != nil {
			geo := *address.Geo
			address.Geo = &geo
		}
		entity.Address = &address
	}
	if entity.Company != nil {
		company := *entity.Company
		entity.Company = &company
	}
	return entity
}

// ClonePublic deep-copies a wire user.
func ClonePublic(user types.User) types.User {
	if user.Address != nil {
		address := *user.Address
		if address.Geo != nil {
			geo := *address.Geo
			address.Geo = &geo
		}
		user.Address = &address
	}
	if user.Company != nil {
		company := *user.Company
		user.Company = &company
	}
	return user
}

// ClonePublicList deep-copies every user in users.
func ClonePublicList(users []types.User) []types.User {
	out := make([]types.User, len(users))
	for i, user := range users {
		out[i] = ClonePublic(user)
	}
	return out
}

func applyAddress(dst *store.AddressEntity, src *types.Address) {
	dst.Street = src.Street
	dst.Suite = src.Suite
	dst.City = src.City
	dst.Zipcode = src.Zipcode

	if src.Geo != nil {
		if dst.Geo == nil {
			dst.Geo = &store.GeoEntity{AddressID: dst.ID}
		}
		dst.Geo.Lat = src.Geo.Lat
		dst.Geo.Lng = src.Geo.Lng
	}
}

func applyCompany(dst *store.CompanyEntity, src *types.Company) {
	dst.Name = src.Name
	dst.CatchPhrase = src.CatchPhrase
	dst.BS = src.BS
}
