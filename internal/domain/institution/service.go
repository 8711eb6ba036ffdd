package institution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// Service maintains the institution catalogue.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// importFile is the YAML document accepted by Import:
//
//	institutions:
//	  - code: bank-x
//	    name: Bank X
type importFile struct {
	Institutions []Institution `yaml:"institutions"`
}

// Import upserts every institution in a YAML document. The whole file is
// validated before anything is written.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	var file importFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to parse institutions file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Institutions))
	for i := range file.Institutions {
		inst := &file.Institutions[i]
		inst.Code = strings.TrimSpace(inst.Code)
		inst.Name = strings.TrimSpace(inst.Name)
		if err := inst.Validate(); err != nil {
			return 0, fmt.Errorf("%w: entry %d: %v", ErrInvalidInput, i+1, err)
		}
		if _, dup := seen[inst.Code]; dup {
			return 0, fmt.Errorf("%w: duplicate code %q", ErrInvalidInput, inst.Code)
		}
		seen[inst.Code] = struct{}{}
	}

	for _, inst := range file.Institutions {
		if _, err := s.repo.Upsert(ctx, inst); err != nil {
			return 0, fmt.Errorf("failed to upsert institution %s: %w", inst.Code, err)
		}
	}

	s.logger.InfoContext(ctx, "institutions imported", "count", len(file.Institutions))
	return len(file.Institutions), nil
}

func (s *Service) Get(ctx context.Context, code string) (*Institution, error) {
	inst, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	return inst, nil
}

func (s *Service) List(ctx context.Context) ([]*Institution, error) {
	return s.repo.List(ctx)
}
