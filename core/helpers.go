package core

import "context"

// EntityStore is the typed convenience surface over CRUD
type EntityStore interface {
	FindUserByID(ctx context.Context, id ID) Result[*User]
	FindUserByEmail(ctx context.Context, email string) Result[*User]
	ListUsers(ctx context.Context, companyID ID) Result[[]User]
	CreateUser(ctx context.Context, user *User) Result[*User]
	UpdateUser(ctx context.Context, id ID, changes Row) Result[*User]

	FindCompanyByID(ctx context.Context, id ID) Result[*Company]
	CreateCompany(ctx context.Context, company *Company) Result[*Company]
	UpdateCompany(ctx context.Context, id ID, changes Row) Result[*Company]

	ListProjects(ctx context.Context, companyID ID, opts *SelectOptions) Result[[]Project]
	FindProjectByID(ctx context.Context, id ID) Result[*Project]
	CreateProject(ctx context.Context, project *Project) Result[*Project]
	UpdateProject(ctx context.Context, id ID, changes Row) Result[*Project]
	DeleteProject(ctx context.Context, id ID) Result[struct{}]
}

// Entities implements EntityStore on top of any CRUD. Adapters embed it,
// and transactions hand it to their callbacks.
type Entities struct {
	CRUD
}

// NewEntities wraps c with the typed helpers
func NewEntities(c CRUD) Entities {
	return Entities{CRUD: c}
}

// FindUserByID looks a user up by primary key
func (e Entities) FindUserByID(ctx context.Context, id ID) Result[*User] {
	return decodeOne[User](e.SelectOne(ctx, TableUsers, Filters{PrimaryKey: id.String()}))
}

// FindUserByEmail looks a user up by email
func (e Entities) FindUserByEmail(ctx context.Context, email string) Result[*User] {
	return decodeOne[User](e.SelectOne(ctx, TableUsers, Filters{"email": email}))
}

// ListUsers returns the users of a company ordered by name
func (e Entities) ListUsers(ctx context.Context, companyID ID) Result[[]User] {
	if companyID.IsZero() {
		return Fail[[]User](NewQueryError("company id is required", nil))
	}
	opts := NewSelectOptions().WithOrder("name", SortAsc)
	return decodeMany[User](e.Select(ctx, TableUsers, Filters{"company_id": companyID.String()}, opts))
}

// CreateUser inserts a user
func (e Entities) CreateUser(ctx context.Context, user *User) Result[*User] {
	return decodeOne[User](e.Insert(ctx, TableUsers, ToRow(user)))
}

// UpdateUser applies changes to one user
func (e Entities) UpdateUser(ctx context.Context, id ID, changes Row) Result[*User] {
	return decodeOne[User](e.Update(ctx, TableUsers, Filters{PrimaryKey: id.String()}, changes))
}

// FindCompanyByID looks a company up by primary key
func (e Entities) FindCompanyByID(ctx context.Context, id ID) Result[*Company] {
	return decodeOne[Company](e.SelectOne(ctx, TableCompanies, Filters{PrimaryKey: id.String()}))
}

// CreateCompany inserts a company
func (e Entities) CreateCompany(ctx context.Context, company *Company) Result[*Company] {
	return decodeOne[Company](e.Insert(ctx, TableCompanies, ToRow(company)))
}

// UpdateCompany applies changes to one company
func (e Entities) UpdateCompany(ctx context.Context, id ID, changes Row) Result[*Company] {
	return decodeOne[Company](e.Update(ctx, TableCompanies, Filters{PrimaryKey: id.String()}, changes))
}

// ListProjects returns the projects of a company. Results are scoped to
// companyID; there is no unscoped variant.
func (e Entities) ListProjects(ctx context.Context, companyID ID, opts *SelectOptions) Result[[]Project] {
	if companyID.IsZero() {
		return Fail[[]Project](NewQueryError("company id is required", nil))
	}
	if opts == nil {
		opts = NewSelectOptions().WithOrder("created_at", SortDesc)
	}
	return decodeMany[Project](e.Select(ctx, TableProjects, Filters{"company_id": companyID.String()}, opts))
}

// FindProjectByID looks a project up by primary key
func (e Entities) FindProjectByID(ctx context.Context, id ID) Result[*Project] {
	return decodeOne[Project](e.SelectOne(ctx, TableProjects, Filters{PrimaryKey: id.String()}))
}

// CreateProject inserts a project
func (e Entities) CreateProject(ctx context.Context, project *Project) Result[*Project] {
	return decodeOne[Project](e.Insert(ctx, TableProjects, ToRow(project)))
}

// UpdateProject applies changes to one project
func (e Entities) UpdateProject(ctx context.Context, id ID, changes Row) Result[*Project] {
	return decodeOne[Project](e.Update(ctx, TableProjects, Filters{PrimaryKey: id.String()}, changes))
}

// DeleteProject hard-deletes a project
func (e Entities) DeleteProject(ctx context.Context, id ID) Result[struct{}] {
	return e.Delete(ctx, TableProjects, Filters{PrimaryKey: id.String()})
}

func decodeOne[T any](r Result[Row]) Result[*T] {
	if r.Error != nil {
		return Result[*T]{Error: r.Error, Count: r.Count}
	}
	if r.Data == nil {
		return Result[*T]{Count: r.Count}
	}
	var v T
	if err := FromRow(r.Data, &v); err != nil {
		return Fail[*T](NewQueryError("failed to decode row", err))
	}
	return Result[*T]{Data: &v, Count: r.Count}
}

func decodeMany[T any](r Result[[]Row]) Result[[]T] {
	if r.Error != nil {
		return Result[[]T]{Error: r.Error, Count: r.Count}
	}
	items := make([]T, 0, len(r.Data))
	for _, row := range r.Data {
		var v T
		if err := FromRow(row, &v); err != nil {
			return Fail[[]T](NewQueryError("failed to decode row", err))
		}
		items = append(items, v)
	}
	return Result[[]T]{Data: items, Count: r.Count}
}
