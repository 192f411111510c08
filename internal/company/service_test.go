package company

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmos-esg/atmos/internal/shared"
)

type memRepo struct {
	companies map[uuid.UUID]Company
	entities  map[uuid.UUID][]Entity
}

func newMemRepo() *memRepo {
	return &memRepo{
		companies: make(map[uuid.UUID]Company),
		entities:  make(map[uuid.UUID][]Entity),
	}
}

func (r *memRepo) InsertCompany(ctx context.Context, in CreateCompanyInput) (Company, error) {
	c := Company{ID: uuid.New(), Name: in.Name, RegistryCode: in.RegistryCode, Sector: in.Sector}
	r.companies[c.ID] = c
	return c, nil
}

func (r *memRepo) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	c, ok := r.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	return c, nil
}

func (r *memRepo) ListCompanies(ctx context.Context, limit, offset int) ([]Company, error) {
	var out []Company
	for _, c := range r.companies {
		out = append(out, c)
	}
	return out, nil
}

func (r *memRepo) UpdateCompany(ctx context.Context, id uuid.UUID, in UpdateCompanyInput) (Company, error) {
	c, ok := r.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	c.Name = in.Name
	c.Sector = in.Sector
	r.companies[id] = c
	return c, nil
}

func (r *memRepo) InsertEntity(ctx context.Context, in CreateEntityInput) (Entity, error) {
	e := Entity{
		ID:                  uuid.New(),
		CompanyID:           in.CompanyID,
		Name:                in.Name,
		EntityType:          in.EntityType,
		OwnershipPercentage: in.OwnershipPercentage,
		OperationalControl:  in.OperationalControl,
		FinancialControl:    in.FinancialControl,
		Active:              true,
	}
	r.entities[in.CompanyID] = append(r.entities[in.CompanyID], e)
	return e, nil
}

func (r *memRepo) UpdateEntity(ctx context.Context, companyID, entityID uuid.UUID, in UpdateEntityInput) (Entity, error) {
	for i, e := range r.entities[companyID] {
		if e.ID == entityID {
			e.Name = in.Name
			e.OwnershipPercentage = in.OwnershipPercentage
			e.OperationalControl = in.OperationalControl
			e.FinancialControl = in.FinancialControl
			e.Active = in.Active
			r.entities[companyID][i] = e
			return e, nil
		}
	}
	return Entity{}, ErrEntityNotFound
}

func (r *memRepo) ActiveEntities(ctx context.Context, companyID uuid.UUID) ([]Entity, error) {
	var out []Entity
	for _, e := range r.entities[companyID] {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) ListEntities(ctx context.Context, companyID uuid.UUID) ([]Entity, error) {
	return r.entities[companyID], nil
}

type memAudit struct {
	logs []shared.AuditLog
}

func (a *memAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestCreateCompanyRecordsAudit(t *testing.T) {
	audit := &memAudit{}
	svc := NewService(newMemRepo(), audit)

	created, err := svc.CreateCompany(context.Background(), CreateCompanyInput{
		Name:    "Acme Group",
		Sector:  "manufacturing",
		ActorID: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Group", created.Name)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "COMPANY_CREATED", audit.logs[0].Action)
	assert.Equal(t, "admin-1", audit.logs[0].ActorID)
	assert.Equal(t, created.ID.String(), audit.logs[0].EntityID)
}

func TestCreateCompanyValidation(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	_, err := svc.CreateCompany(context.Background(), CreateCompanyInput{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateEntityChecksCompany(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)

	_, err := svc.CreateEntity(context.Background(), CreateEntityInput{
		CompanyID:           uuid.New(),
		Name:                "Orphan",
		OwnershipPercentage: 50,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	parent, err := svc.CreateCompany(context.Background(), CreateCompanyInput{Name: "Acme Group", ActorID: "admin-1"})
	require.NoError(t, err)

	entity, err := svc.CreateEntity(context.Background(), CreateEntityInput{
		CompanyID:           parent.ID,
		Name:                "Alpha",
		EntityType:          "subsidiary",
		OwnershipPercentage: 75,
		OperationalControl:  true,
		ActorID:             "admin-1",
	})
	require.NoError(t, err)
	assert.True(t, entity.Active, "new entities start active")
}

func TestCreateEntityValidation(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	tests := []struct {
		name string
		in   CreateEntityInput
	}{
		{"missing company", CreateEntityInput{Name: "Alpha", OwnershipPercentage: 50}},
		{"blank name", CreateEntityInput{CompanyID: uuid.New(), Name: " "}},
		{"ownership above 100", CreateEntityInput{CompanyID: uuid.New(), Name: "Alpha", OwnershipPercentage: 140}},
		{"negative ownership", CreateEntityInput{CompanyID: uuid.New(), Name: "Alpha", OwnershipPercentage: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateEntity(context.Background(), tc.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestUpdateEntityDeactivation(t *testing.T) {
	repo := newMemRepo()
	audit := &memAudit{}
	svc := NewService(repo, audit)

	parent, err := svc.CreateCompany(context.Background(), CreateCompanyInput{Name: "Acme Group", ActorID: "admin-1"})
	require.NoError(t, err)
	entity, err := svc.CreateEntity(context.Background(), CreateEntityInput{
		CompanyID:           parent.ID,
		Name:                "Alpha",
		OwnershipPercentage: 75,
		ActorID:             "admin-1",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateEntity(context.Background(), parent.ID, entity.ID, UpdateEntityInput{
		Name:                "Alpha",
		OwnershipPercentage: 75,
		Active:              false,
		ActorID:             "admin-1",
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	active, err := svc.ActiveEntities(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Empty(t, active, "deactivated entities drop out of the consolidation read path")

	all, err := svc.ListEntities(context.Background(), parent.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1, "deactivation is not deletion")
}

func TestHasFinancialControlFallback(t *testing.T) {
	yes, no := true, false

	assert.True(t, Entity{FinancialControl: &yes, OperationalControl: false}.HasFinancialControl())
	assert.False(t, Entity{FinancialControl: &no, OperationalControl: true}.HasFinancialControl())
	assert.True(t, Entity{FinancialControl: nil, OperationalControl: true}.HasFinancialControl())
	assert.False(t, Entity{FinancialControl: nil, OperationalControl: false}.HasFinancialControl())
}
