package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loophr/internal/domain/auth"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicateName  = errors.New("name already in use")
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const userColumns = `
  u.id, u.name, u.email, u.roles,
  COALESCE(u.department_id::text, ''),
  COALESCE(d.name, ''),
  u.position,
  COALESCE(u.manager_id::text, ''),
  u.status, u.last_login, u.created_at, u.updated_at
`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Roles,
		&u.DepartmentID, &u.Department, &u.Position, &u.ManagerID,
		&u.Status, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users u
    LEFT JOIN departments d ON u.department_id = d.id
    WHERE u.id = $1
  `, userID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

type UserListResult struct {
	Users []User
	Total int
}

func (s *Store) ListUsers(ctx context.Context, filter UserFilter, limit, offset int) (UserListResult, error) {
	where := []string{"1=1"}
	args := []any{}

	if filter.Role != "" {
		args = append(args, filter.Role)
		where = append(where, fmt.Sprintf("$%d = ANY(u.roles)", len(args)))
	}
	if filter.DepartmentID != "" {
		args = append(args, filter.DepartmentID)
		where = append(where, fmt.Sprintf("u.department_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("u.status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = append(where, fmt.Sprintf("(lower(u.name) LIKE $%d OR lower(u.email) LIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM users u WHERE "+clause, args...).Scan(&total); err != nil {
		return UserListResult{}, err
	}

	args = append(args, limit, offset)
	rows, err := s.DB.Query(ctx, `
    SELECT `+userColumns+`
    FROM users u
    LEFT JOIN departments d ON u.department_id = d.id
    WHERE `+clause+`
    ORDER BY u.name
    LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return UserListResult{}, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return UserListResult{}, err
		}
		users = append(users, user)
	}
	return UserListResult{Users: users, Total: total}, nil
}

func (s *Store) ListManagers(ctx context.Context, search string) ([]User, error) {
	query := `
    SELECT ` + userColumns + `
    FROM users u
    LEFT JOIN departments d ON u.department_id = d.id
    WHERE u.status = 'active' AND ('manager' = ANY(u.roles) OR 'admin' = ANY(u.roles))
  `
	args := []any{}
	if search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		query += fmt.Sprintf(" AND (lower(u.name) LIKE $%d OR lower(u.email) LIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY u.name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var managers []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		managers = append(managers, user)
	}
	return managers, nil
}

func (s *Store) ListUsersByDepartmentName(ctx context.Context, name string) ([]User, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+userColumns+`
    FROM users u
    JOIN departments d ON u.department_id = d.id
    WHERE lower(d.name) = lower($1)
    ORDER BY u.name
  `, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) DepartmentNamesInUse(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT DISTINCT d.name
    FROM departments d
    JOIN users u ON u.department_id = d.id
    ORDER BY d.name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

type CreateUserInput struct {
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
	DepartmentID string
	Position     string
	ManagerID    string
}

func (s *Store) CreateUser(ctx context.Context, input CreateUserInput) (string, error) {
	exists, err := s.emailTaken(ctx, input.Email, "")
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrDuplicateEmail
	}

	roles := auth.NormalizeRoles(input.Roles)
	if len(roles) == 0 {
		roles = []string{auth.RoleEmployee}
	}

	var id string
	err = s.DB.QueryRow(ctx, `
    INSERT INTO users (name, email, password_hash, roles, department_id, position, manager_id)
    VALUES ($1, $2, $3, $4, NULLIF($5,'')::uuid, $6, NULLIF($7,'')::uuid)
    RETURNING id
  `, input.Name, input.Email, input.PasswordHash, roles, input.DepartmentID, input.Position, input.ManagerID).Scan(&id)
	return id, err
}

type UpdateUserInput struct {
	Name         *string
	Email        *string
	Roles        []string
	DepartmentID *string
	Position     *string
	ManagerID    *string
	Status       *string
}

func (s *Store) UpdateUser(ctx context.Context, userID string, input UpdateUserInput) (User, error) {
	set := []string{"updated_at = now()"}
	args := []any{}

	if input.Name != nil {
		args = append(args, *input.Name)
		set = append(set, fmt.Sprintf("name = $%d", len(args)))
	}
	if input.Email != nil {
		taken, err := s.emailTaken(ctx, *input.Email, userID)
		if err != nil {
			return User{}, err
		}
		if taken {
			return User{}, ErrDuplicateEmail
		}
		args = append(args, *input.Email)
		set = append(set, fmt.Sprintf("email = $%d", len(args)))
	}
	if input.Roles != nil {
		roles := auth.NormalizeRoles(input.Roles)
		if len(roles) == 0 {
			roles = []string{auth.RoleEmployee}
		}
		args = append(args, roles)
		set = append(set, fmt.Sprintf("roles = $%d", len(args)))
	}
	if input.DepartmentID != nil {
		args = append(args, *input.DepartmentID)
		set = append(set, fmt.Sprintf("department_id = NULLIF($%d,'')::uuid", len(args)))
	}
	if input.Position != nil {
		args = append(args, *input.Position)
		set = append(set, fmt.Sprintf("position = $%d", len(args)))
	}
	if input.ManagerID != nil {
		args = append(args, *input.ManagerID)
		set = append(set, fmt.Sprintf("manager_id = NULLIF($%d,'')::uuid", len(args)))
	}
	if input.Status != nil {
		args = append(args, *input.Status)
		set = append(set, fmt.Sprintf("status = $%d", len(args)))
	}

	args = append(args, userID)
	tag, err := s.DB.Exec(ctx, fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)), args...)
	if err != nil {
		return User{}, err
	}
	if tag.RowsAffected() == 0 {
		return User{}, ErrNotFound
	}
	return s.GetUser(ctx, userID)
}

// DeactivateUser is the delete operation for users; accounts are never hard
// deleted so history stays resolvable.
func (s *Store) DeactivateUser(ctx context.Context, userID string) error {
	tag, err := s.DB.Exec(ctx, "UPDATE users SET status = 'inactive', updated_at = now() WHERE id = $1", userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) emailTaken(ctx context.Context, email, excludeUserID string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM users WHERE lower(email) = lower($1) AND id::text <> $2
  `, email, excludeUserID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, description, COALESCE(manager_id::text, ''), created_at, updated_at
    FROM departments
    ORDER BY name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.ManagerID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	return departments, nil
}

func (s *Store) GetDepartment(ctx context.Context, departmentID string) (Department, error) {
	var d Department
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, description, COALESCE(manager_id::text, ''), created_at, updated_at
    FROM departments
    WHERE id = $1
  `, departmentID).Scan(&d.ID, &d.Name, &d.Description, &d.ManagerID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Department{}, ErrNotFound
	}
	return d, err
}

func (s *Store) CreateDepartment(ctx context.Context, name, description, managerID string) (string, error) {
	var count int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM departments WHERE lower(name) = lower($1)", name).Scan(&count); err != nil {
		return "", err
	}
	if count > 0 {
		return "", ErrDuplicateName
	}

	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO departments (name, description, manager_id)
    VALUES ($1, $2, NULLIF($3,'')::uuid)
    RETURNING id
  `, name, description, managerID).Scan(&id)
	return id, err
}

func (s *Store) UpdateDepartment(ctx context.Context, departmentID, name, description, managerID string) (Department, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE departments
    SET name = $1, description = $2, manager_id = NULLIF($3,'')::uuid, updated_at = now()
    WHERE id = $4
  `, name, description, managerID, departmentID)
	if err != nil {
		return Department{}, err
	}
	if tag.RowsAffected() == 0 {
		return Department{}, ErrNotFound
	}
	return s.GetDepartment(ctx, departmentID)
}

// DeleteDepartment removes the department; member and manager references are
// cleared, not blocked.
func (s *Store) DeleteDepartment(ctx context.Context, departmentID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM departments WHERE id = $1", departmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) IsManagerOf(ctx context.Context, managerID, userID string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM users WHERE id = $1 AND manager_id = $2
  `, userID, managerID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
