package emissions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestIngestInputValidate(t *testing.T) {
	valid := IngestInput{
		EntityID:         uuid.New(),
		ReportingYear:    2024,
		Scope1CO2e:       f64(120.5),
		ValidationStatus: StatusValidated,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*IngestInput)
	}{
		{"missing entity", func(in *IngestInput) { in.EntityID = uuid.Nil }},
		{"year out of range", func(in *IngestInput) { in.ReportingYear = 1800 }},
		{"unknown status", func(in *IngestInput) { in.ValidationStatus = "guessed" }},
		{"negative amount", func(in *IngestInput) { in.Scope2CO2e = f64(-1) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			assert.ErrorIs(t, in.Validate(), ErrInvalidInput)
		})
	}
}

func TestIngestInputAllowsAbsentAmounts(t *testing.T) {
	in := IngestInput{
		EntityID:      uuid.New(),
		ReportingYear: 2024,
	}
	assert.NoError(t, in.Validate(), "a record with no measured scopes is still a record")
}

func TestIngestInputAllowsZeroAmounts(t *testing.T) {
	in := IngestInput{
		EntityID:      uuid.New(),
		ReportingYear: 2024,
		Scope1CO2e:    f64(0),
	}
	assert.NoError(t, in.Validate(), "a measured zero is distinct from not measured")
}

type stubRepo struct {
	inserted []IngestInput
	latest   *Record
}

func (r *stubRepo) Insert(ctx context.Context, in IngestInput) (Record, error) {
	r.inserted = append(r.inserted, in)
	return Record{ID: uuid.New(), EntityID: in.EntityID, ReportingYear: in.ReportingYear}, nil
}

func (r *stubRepo) LatestForEntityYear(ctx context.Context, entityID uuid.UUID, year int) (*Record, error) {
	return r.latest, nil
}

func (r *stubRepo) ListForEntity(ctx context.Context, entityID uuid.UUID, year int) ([]Record, error) {
	return nil, nil
}

func TestServiceIngestValidates(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.Ingest(context.Background(), IngestInput{ReportingYear: 2024})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, repo.inserted)

	_, err = svc.Ingest(context.Background(), IngestInput{EntityID: uuid.New(), ReportingYear: 2024})
	require.NoError(t, err)
	assert.Len(t, repo.inserted, 1)
}

func TestServiceLatestMissingIsNotAnError(t *testing.T) {
	svc := NewService(&stubRepo{})
	rec, err := svc.LatestForEntityYear(context.Background(), uuid.New(), 2024)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
