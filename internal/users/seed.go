package users

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SeedUser is a fixture user with a fixed id
type SeedUser struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// SeedFile is the layout of a fixture file
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

// LoadSeedFile reads fixture users from a YAML file
func LoadSeedFile(filename string) ([]SeedUser, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	return file.Users, nil
}

// SeedUsers stores fixture users under their fixed ids. Fixtures whose id
// already exists are skipped, so seeding is safe to repeat on every start.
// It returns the number of users inserted.
func (s *UserServiceImpl) SeedUsers(ctx context.Context, seeds []SeedUser) (int, error) {
	inserted := 0

	for i, seed := range seeds {
		id, err := uuid.Parse(seed.ID)
		if err != nil {
			return inserted, fmt.Errorf("seed user %d has invalid id %q: %w", i, seed.ID, err)
		}

		req := &CreateUserRequest{Name: seed.Name, Login: seed.Login, Password: seed.Password}
		if err := validateCreate(req); err != nil {
			return inserted, fmt.Errorf("seed user %s: %w", seed.ID, err)
		}

		if _, err := s.store.GetUser(ctx, id); err == nil {
			s.logger.Debug("Seed user already present", zap.String("user_id", seed.ID))
			continue
		} else if !IsNotFound(err) {
			return inserted, fmt.Errorf("failed to check seed user %s: %w", seed.ID, err)
		}

		hash, err := s.hashPassword(seed.Password)
		if err != nil {
			return inserted, err
		}

		user := &User{
			ID:           id,
			Name:         seed.Name,
			Login:        seed.Login,
			PasswordHash: hash,
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			// A deleted fixture keeps its id reserved; leave it deleted.
			if conflictField(err) == "id" {
				continue
			}
			return inserted, fmt.Errorf("failed to seed user %s: %w", seed.ID, err)
		}
		inserted++
	}

	s.logger.Info("Seed users loaded",
		zap.Int("total", len(seeds)),
		zap.Int("inserted", inserted))
	return inserted, nil
}
