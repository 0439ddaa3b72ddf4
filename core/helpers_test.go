package core

import (
	"context"
	"testing"
)

// recordingCRUD serves canned results and remembers the last call
type recordingCRUD struct {
	table   string
	filters Filters
	opts    *SelectOptions
	data    Row

	rows []Row
	row  Row
	err  *Error
}

func (r *recordingCRUD) Select(ctx context.Context, table string, filters Filters, opts *SelectOptions) Result[[]Row] {
	r.table, r.filters, r.opts = table, filters, opts
	if r.err != nil {
		return Fail[[]Row](r.err)
	}
	return OKWithCount(r.rows, int64(len(r.rows)))
}

func (r *recordingCRUD) SelectOne(ctx context.Context, table string, filters Filters) Result[Row] {
	r.table, r.filters = table, filters
	if r.err != nil {
		return Fail[Row](r.err)
	}
	return OK(r.row)
}

func (r *recordingCRUD) Insert(ctx context.Context, table string, data Row) Result[Row] {
	r.table, r.data = table, data
	stored := Row{"id": "generated"}
	for k, v := range data {
		stored[k] = v
	}
	return OK(stored)
}

func (r *recordingCRUD) Update(ctx context.Context, table string, filters Filters, data Row) Result[Row] {
	r.table, r.filters, r.data = table, filters, data
	return OKWithCount(r.row, 1)
}

func (r *recordingCRUD) Delete(ctx context.Context, table string, filters Filters) Result[struct{}] {
	r.table, r.filters = table, filters
	return Result[struct{}]{Count: new(int64)}
}

func TestFindUserByEmail(t *testing.T) {
	crud := &recordingCRUD{row: Row{"id": "u1", "email": "ana@example.com", "name": "Ana"}}
	store := NewEntities(crud)

	result := store.FindUserByEmail(context.Background(), "ana@example.com")

	if result.Error != nil {
		t.Fatalf("Unexpected error: %v", result.Error)
	}
	if crud.table != TableUsers {
		t.Errorf("Expected table %s, got %s", TableUsers, crud.table)
	}
	if crud.filters["email"] != "ana@example.com" {
		t.Errorf("Expected email filter, got %v", crud.filters)
	}
	if result.Data == nil || result.Data.ID != "u1" {
		t.Errorf("Expected decoded user u1, got %+v", result.Data)
	}
}

func TestFindUserByIDNotFound(t *testing.T) {
	store := NewEntities(&recordingCRUD{})

	result := store.FindUserByID(context.Background(), "missing")

	// Not found is a success with nil data
	if result.Error != nil {
		t.Errorf("Expected no error for missing user, got %v", result.Error)
	}
	if result.Data != nil {
		t.Errorf("Expected nil data, got %+v", result.Data)
	}
}

func TestHelpersPropagateErrors(t *testing.T) {
	crud := &recordingCRUD{err: NewConnectionError("not connected", ErrNotConnected)}
	store := NewEntities(crud)

	result := store.FindCompanyByID(context.Background(), "c1")
	if result.Error == nil || result.Error.Kind != ConnectionError {
		t.Errorf("Expected connection error, got %v", result.Error)
	}

	list := store.ListProjects(context.Background(), "c1", nil)
	if list.Error == nil || list.Data != nil {
		t.Errorf("Expected failed result without data, got %+v", list)
	}
}

func TestListUsersOrdering(t *testing.T) {
	crud := &recordingCRUD{rows: []Row{{"id": "u1"}, {"id": "u2"}}}
	store := NewEntities(crud)

	result := store.ListUsers(context.Background(), "c1")

	if len(result.Data) != 2 {
		t.Fatalf("Expected 2 users, got %d", len(result.Data))
	}
	if crud.filters["company_id"] != "c1" {
		t.Errorf("Expected company scoping, got %v", crud.filters)
	}
	if crud.opts == nil || crud.opts.OrderBy != "name" || crud.opts.Direction() != SortAsc {
		t.Errorf("Expected ordering by name asc, got %+v", crud.opts)
	}
}

func TestListProjectsDefaultsAndScoping(t *testing.T) {
	crud := &recordingCRUD{rows: []Row{}}
	store := NewEntities(crud)

	store.ListProjects(context.Background(), "c1", nil)
	if crud.opts == nil || crud.opts.OrderBy != "created_at" || crud.opts.OrderDirection != SortDesc {
		t.Errorf("Expected newest-first default ordering, got %+v", crud.opts)
	}

	custom := NewSelectOptions().WithPagination(10, 20)
	store.ListProjects(context.Background(), "c1", custom)
	if crud.opts != custom {
		t.Error("Expected caller options to be passed through")
	}

	result := store.ListProjects(context.Background(), "", nil)
	if result.Error == nil || result.Error.Kind != QueryError {
		t.Errorf("Expected query error without company id, got %v", result.Error)
	}
}

func TestCreateProjectUsesRow(t *testing.T) {
	crud := &recordingCRUD{}
	store := NewEntities(crud)

	result := store.CreateProject(context.Background(), &Project{CompanyID: "c1", Name: "Tower", Budget: 100})

	if result.Error != nil {
		t.Fatalf("Unexpected error: %v", result.Error)
	}
	if crud.table != TableProjects {
		t.Errorf("Expected table projects, got %s", crud.table)
	}
	if _, ok := crud.data["id"]; ok {
		t.Error("Expected empty id to be omitted from insert")
	}
	if result.Data.ID != "generated" || result.Data.Name != "Tower" {
		t.Errorf("Expected stored project, got %+v", result.Data)
	}
}

func TestDeleteProjectFiltersByID(t *testing.T) {
	crud := &recordingCRUD{}
	store := NewEntities(crud)

	result := store.DeleteProject(context.Background(), "p9")

	if result.Error != nil {
		t.Errorf("Unexpected error: %v", result.Error)
	}
	if crud.filters[PrimaryKey] != "p9" {
		t.Errorf("Expected id filter p9, got %v", crud.filters)
	}
}
