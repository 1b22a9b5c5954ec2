package hospital

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
)

var ErrInvalidName = apperr.BadRequest("hospital_name is invalid")

type Service struct {
	repo      Repository
	tx        db.Transactor
	directory *Directory
	logger    zerolog.Logger
}

func NewService(repo Repository, tx db.Transactor, directory *Directory, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, directory: directory, logger: logger}
}

// EnsureByName returns the hospital whose slug matches name, creating it when
// missing. It joins the transaction in ctx when there is one.
func (s *Service) EnsureByName(ctx context.Context, name string) (*Hospital, error) {
	name = strings.TrimSpace(name)
	key := Slugify(name)
	if key == "" {
		return nil, ErrInvalidName
	}
	return s.repo.Upsert(ctx, name, key)
}

func (s *Service) Names(ctx context.Context) ([]string, error) {
	return s.directory.Names(ctx)
}

// Import creates a hospital row for every directory name and returns how
// many names were processed.
func (s *Service) Import(ctx context.Context) (int, error) {
	names, err := s.directory.Names(ctx)
	if err != nil {
		return 0, err
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, name := range names {
			if _, err := s.EnsureByName(ctx, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int("count", len(names)).Msg("hospitals imported")
	return len(names), nil
}
