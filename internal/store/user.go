package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sort orders a listing by one column.
type Sort struct {
	Field string
	Desc  bool
}

var sortableColumns = map[string]string{
	"id":       "id",
	"name":     "name",
	"username": "username",
	"email":    "email",
}

// IsSortable reports whether field may be used to order user listings.
func IsSortable(field string) bool {
	_, ok := sortableColumns[field]
	return ok
}

// UserRepository handles persistence for users and their owned records.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func withNested(db *gorm.DB) *gorm.DB {
	return db.Preload("Address.Geo").Preload("Company")
}

func (r *UserRepository) FindAll(ctx context.Context) ([]UserEntity, error) {
	var users []UserEntity
	err := r.db.WithContext(ctx).
		Scopes(withNested).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, translateError(err)
	}
	return users, nil
}

func (r *UserRepository) FindPage(ctx context.Context, offset, limit int, sort Sort) ([]UserEntity, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&UserEntity{}).Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	column, ok := sortableColumns[sort.Field]
	if !ok {
		column = "id"
	}

	users := make([]UserEntity, 0, limit)
	err := r.db.WithContext(ctx).
		Scopes(withNested).
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: sort.Desc}).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, translateError(err)
	}
	return users, total, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (UserEntity, error) {
	var user UserEntity
	if err := r.db.WithContext(ctx).Scopes(withNested).First(&user, id).Error; err != nil {
		return UserEntity{}, translateError(err)
	}
	return user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (UserEntity, error) {
	var user UserEntity
	err := r.db.WithContext(ctx).
		Scopes(withNested).
		Where("username = ?", username).
		First(&user).Error
	if err != nil {
		return UserEntity{}, translateError(err)
	}
	return user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (UserEntity, error) {
	var user UserEntity
	err := r.db.WithContext(ctx).
		Scopes(withNested).
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		return UserEntity{}, translateError(err)
	}
	return user, nil
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username = ?", username)
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", email)
}

func (r *UserRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "id = ?", id)
}

func (r *UserRepository) exists(ctx context.Context, cond string, value any) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&UserEntity{}).
		Where(cond, value).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&UserEntity{}).Count(&count).Error; err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

// Save inserts the user when ID is zero and otherwise replaces the stored
// row together with its nested records. Both paths run in one transaction.
// Replacing a row that no longer exists returns ErrNotFound.
func (r *UserRepository) Save(ctx context.Context, user UserEntity) (UserEntity, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if user.ID == 0 {
			return tx.Create(&user).Error
		}

		// Save upserts, so a row deleted since it was read must be
		// caught here. The update also locks the row until commit.
		user.UpdatedAt = time.Now()
		touched := tx.Model(&UserEntity{}).Where("id = ?", user.ID).Update("updated_at", user.UpdatedAt)
		if touched.Error != nil {
			return touched.Error
		}
		if touched.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(&user).Error
	})
	if err != nil {
		return UserEntity{}, translateError(err)
	}
	return user, nil
}

// DeleteByID removes the user and every nested record it owns.
func (r *UserRepository) DeleteByID(ctx context.Context, id int64) error {
	return translateError(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		addressIDs := tx.Model(&AddressEntity{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("address_id IN (?)", addressIDs).Delete(&GeoEntity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&AddressEntity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&CompanyEntity{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&UserEntity{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}))
}
