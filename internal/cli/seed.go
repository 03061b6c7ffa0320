package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/service"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/role"
	"github.com/garyjia/agency-ops/pkg/utils"
)

// Fixtures is the YAML document loaded by the seed command
type Fixtures struct {
	Users   []UserFixture   `yaml:"users"`
	Intakes []IntakeFixture `yaml:"intakes"`
}

// UserFixture is one account with its role
type UserFixture struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
	Role  string `yaml:"role"`
}

// IntakeFixture is an intake submitted on behalf of a client user
type IntakeFixture struct {
	Client string                 `yaml:"client"`
	Title  string                 `yaml:"title"`
	Notes  string                 `yaml:"notes"`
	Form   map[string]interface{} `yaml:"form"`
}

// SeedResult lists what Seed created
type SeedResult struct {
	Users    int      `json:"users"`
	Projects []string `json:"projects"`
}

// LoadFixtures parses and checks a fixture document. Roles must be one of
// the known role names; unknown fields are rejected.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixtures
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	clients := make(map[string]bool)
	for i, u := range f.Users {
		if err := utils.ValidateIdentifier(u.ID); err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		if u.Email != "" {
			if err := utils.ValidateEmail(u.Email); err != nil {
				return nil, fmt.Errorf("users[%d]: %w", i, err)
			}
		}
		r, ok := role.Parse(u.Role)
		if !ok {
			return nil, fmt.Errorf("users[%d]: unknown role %q", i, u.Role)
		}
		if r == role.Client {
			clients[u.ID] = true
		}
	}

	for i, in := range f.Intakes {
		if !clients[in.Client] {
			return nil, fmt.Errorf("intakes[%d]: client %q is not a client user in this file", i, in.Client)
		}
		if strings.TrimSpace(in.Title) == "" {
			return nil, fmt.Errorf("intakes[%d]: title is required", i)
		}
	}

	return &f, nil
}

// UserStore is the part of the user repository seeding writes to
type UserStore interface {
	Upsert(ctx context.Context, user *entity.User) error
}

// Seed upserts the users and submits each intake as its client, all inside
// one transaction
func Seed(ctx context.Context, tx port.TransactionManager, users UserStore, intakes service.IntakeService, f *Fixtures) (*SeedResult, error) {
	result := &SeedResult{Projects: []string{}}

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, u := range f.Users {
			r, _ := role.Parse(u.Role)
			if err := users.Upsert(ctx, &entity.User{
				ID:    u.ID,
				Email: u.Email,
				Name:  utils.SanitizeString(u.Name),
				Role:  r,
			}); err != nil {
				return err
			}
			result.Users++
		}

		for _, in := range f.Intakes {
			submitted, err := intakes.SubmitIntake(ctx, role.Actor{UserID: in.Client, Role: role.Client}, service.SubmitIntakeInput{
				Title:    utils.SanitizeString(in.Title),
				Notes:    utils.SanitizeString(in.Notes),
				FormData: in.Form,
			})
			if err != nil {
				return fmt.Errorf("intake %q: %w", in.Title, err)
			}
			result.Projects = append(result.Projects, submitted.Project.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
