package store

import "time"

// UserEntity is the persisted form of a user. Address and Company are
// owned one-to-one and live and die with the user row.
type UserEntity struct {
	ID        int64          `gorm:"primaryKey"`
	Name      string         `gorm:"size:100"`
	Username  string         `gorm:"size:50;not null;uniqueIndex"`
	Email     string         `gorm:"size:100;not null;uniqueIndex"`
	Phone     string         `gorm:"size:50"`
	Website   string         `gorm:"size:100"`
	Address   *AddressEntity `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Company   *CompanyEntity `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserEntity) TableName() string { return "users" }

type AddressEntity struct {
	ID      int64 `gorm:"primaryKey"`
	UserID  int64 `gorm:"not null;uniqueIndex"`
	Street  string
	Suite   string
	City    string
	Zipcode string
	Geo     *GeoEntity `gorm:"foreignKey:AddressID;constraint:OnDelete:CASCADE"`
}

func (AddressEntity) TableName() string { return "addresses" }

type GeoEntity struct {
	ID        int64  `gorm:"primaryKey"`
	AddressID int64  `gorm:"not null;uniqueIndex"`
	Lat       string `gorm:"column:lat"`
	Lng       string `gorm:"column:lng"`
}

func (GeoEntity) TableName() string { return "geos" }

type CompanyEntity struct {
	ID          int64 `gorm:"primaryKey"`
	UserID      int64 `gorm:"not null;uniqueIndex"`
	Name        string
	CatchPhrase string `gorm:"column:catch_phrase"`
	BS          string `gorm:"column:bs"`
}

func (CompanyEntity) TableName() string { return "companies" }

// Models lists every entity in dependency order.
func Models() []any {
	return []any{&UserEntity{}, &AddressEntity{}, &GeoEntity{}, &CompanyEntity{}}
}
