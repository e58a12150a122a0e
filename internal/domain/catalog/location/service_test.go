package location

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
)

type stubRepo struct {
	byCode  map[string]*Location
	creates int

	// createErr is returned by the next Create call, once.
	createErr error
	// onCreate runs before Create stores, to simulate a concurrent writer.
	onCreate func()
}

func newStubRepo() *stubRepo {
	return &stubRepo{byCode: make(map[string]*Location)}
}

func (r *stubRepo) Create(ctx context.Context, loc *Location) error {
	r.creates++
	if r.onCreate != nil {
		r.onCreate()
		r.onCreate = nil
	}
	if r.createErr != nil {
		err := r.createErr
		r.createErr = nil
		return err
	}
	if _, ok := r.byCode[loc.Code]; ok {
		return apperror.NewDuplicate("location", "code", loc.Code)
	}
	r.byCode[loc.Code] = loc
	return nil
}

func (r *stubRepo) GetByID(ctx context.Context, locID id.ID) (*Location, error) {
	for _, loc := range r.byCode {
		if loc.ID == locID {
			return loc, nil
		}
	}
	return nil, apperror.NewNotFound("location", locID.String())
}

func (r *stubRepo) GetByCode(ctx context.Context, code string) (*Location, error) {
	loc, ok := r.byCode[code]
	if !ok {
		return nil, apperror.NewNotFound("location", code)
	}
	return loc, nil
}

func (r *stubRepo) List(ctx context.Context) ([]*Location, error) {
	out := make([]*Location, 0, len(r.byCode))
	for _, loc := range r.byCode {
		out = append(out, loc)
	}
	return out, nil
}

func TestEnsureByCode_CreatesLazily(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := NewService(repo)

	loc, err := svc.EnsureByCode(ctx, "  main ")
	require.NoError(t, err)
	assert.Equal(t, "MAIN", loc.Code, "codes are normalized")
	assert.Equal(t, 1, repo.creates)

	again, err := svc.EnsureByCode(ctx, "MAIN")
	require.NoError(t, err)
	assert.Equal(t, loc.ID, again.ID)
	assert.Equal(t, 1, repo.creates, "existing locations are not recreated")
}

func TestEnsureByCode_EmptyCode(t *testing.T) {
	svc := NewService(newStubRepo())
	_, err := svc.EnsureByCode(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestEnsureByCode_DuplicateRaceRereads(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := NewService(repo)

	// Another writer lands the row between our read and our insert.
	winner := NewLocation("MAIN", "MAIN")
	repo.onCreate = func() {
		repo.byCode["MAIN"] = winner
	}

	loc, err := svc.EnsureByCode(ctx, "MAIN")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, loc.ID, "the concurrent winner's row is returned")
}

func TestCreate_Validates(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := NewService(repo)

	err := svc.Create(ctx, &Location{Name: "Main pantry"})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Zero(t, repo.creates)

	loc := &Location{Code: "main", Name: "Main pantry"}
	require.NoError(t, svc.Create(ctx, loc))
	assert.Equal(t, "MAIN", loc.Code)
	assert.False(t, id.IsNil(loc.ID))
}

var _ Repository = (*stubRepo)(nil)
