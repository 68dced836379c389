package store

// UserStatus is the lifecycle state of an employee account.
type UserStatus string

const (
	StatusActive     UserStatus = "active"
	StatusInactive   UserStatus = "inactive"
	StatusTerminated UserStatus = "terminated"
)

// ResourceType classifies a shared resource.
type ResourceType string

const (
	ResourceFolder      ResourceType = "folder"
	ResourceApplication ResourceType = "application"
	ResourceDrive       ResourceType = "drive"
)

// AccessLevel is the level a Permission grants on a resource.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessAdmin AccessLevel = "admin"
)

// AccessLevels lists every valid access level.
var AccessLevels = []AccessLevel{AccessRead, AccessWrite, AccessAdmin}

// Valid reports whether l is one of read, write or admin.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessRead, AccessWrite, AccessAdmin:
		return true
	}
	return false
}

// User is an employee in the directory.
type User struct {
	UserID     string     `json:"user_id" yaml:"user_id" validate:"required"`
	Name       string     `json:"name" yaml:"name" validate:"required"`
	Email      string     `json:"email" yaml:"email" validate:"required,email"`
	Department string     `json:"department" yaml:"department"`
	Role       string     `json:"role" yaml:"role"`
	Status     UserStatus `json:"status" yaml:"status" validate:"required,oneof=active inactive terminated"`
}

// Resource is a shared folder, application or drive.
type Resource struct {
	ResourceID      string       `json:"resource_id" yaml:"resource_id" validate:"required"`
	Name            string       `json:"name" yaml:"name" validate:"required"`
	Type            ResourceType `json:"type" yaml:"type" validate:"required,oneof=folder application drive"`
	OwnerDepartment string       `json:"owner_department" yaml:"owner_department"`
}

// Permission links a user to a resource at an access level.
type Permission struct {
	PermissionID string      `json:"permission_id" yaml:"permission_id" validate:"required"`
	UserID       string      `json:"user_id" yaml:"user_id" validate:"required"`
	ResourceID   string      `json:"resource_id" yaml:"resource_id" validate:"required"`
	AccessLevel  AccessLevel `json:"access_level" yaml:"access_level" validate:"required,oneof=read write admin"`
	GrantedDate  string      `json:"granted_date" yaml:"granted_date"`
}
