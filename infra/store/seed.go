package store

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bselee/enviroflow/core/credentials"
	"github.com/bselee/enviroflow/core/model"
)

// Encrypter seals plaintext credentials for storage.
type Encrypter interface {
	Encrypt(creds credentials.Credentials) (string, error)
}

// ControllerFixture is a controller whose credentials may be given in clear.
// Plain credentials are encrypted before they are stored.
type ControllerFixture struct {
	model.Controller `yaml:",inline"`
	Credentials      map[string]string `yaml:"credentials"`
}

// Fixtures is the YAML layout accepted by Seed.
type Fixtures struct {
	Rooms       []model.Room           `yaml:"rooms"`
	Controllers []ControllerFixture    `yaml:"controllers"`
	Schedules   []model.DeviceSchedule `yaml:"schedules"`
}

// SeedReport counts inserted or updated rows.
type SeedReport struct {
	Rooms       int
	Controllers int
	Schedules   int
}

// LoadFixtures decodes fixtures from r. Unknown fields are rejected.
func LoadFixtures(r io.Reader) (Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return Fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	return f, nil
}

// LoadFixturesFile reads fixtures from path.
func LoadFixturesFile(path string) (Fixtures, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Fixtures{}, err
	}
	defer func() { _ = fh.Close() }()
	return LoadFixtures(fh)
}

// Seed upserts every fixture. enc may be nil when no controller carries
// plain credentials.
func (s *SQLiteStore) Seed(ctx context.Context, f Fixtures, enc Encrypter) (SeedReport, error) {
	var rep SeedReport
	for _, r := range f.Rooms {
		if err := s.UpsertRoom(ctx, r); err != nil {
			return rep, fmt.Errorf("room %s: %w", r.ID, err)
		}
		rep.Rooms++
	}
	for _, c := range f.Controllers {
		ctrl := c.Controller
		if len(c.Credentials) > 0 {
			if enc == nil {
				return rep, fmt.Errorf("controller %s: plain credentials need an encryption key", ctrl.ID)
			}
			blob, err := enc.Encrypt(c.Credentials)
			if err != nil {
				return rep, fmt.Errorf("controller %s: %w", ctrl.ID, err)
			}
			ctrl.EncryptedCredentials = blob
		}
		if err := s.UpsertController(ctx, ctrl); err != nil {
			return rep, fmt.Errorf("controller %s: %w", ctrl.ID, err)
		}
		rep.Controllers++
	}
	for _, d := range f.Schedules {
		if err := s.UpsertSchedule(ctx, d); err != nil {
			return rep, err
		}
		rep.Schedules++
	}
	return rep, nil
}
