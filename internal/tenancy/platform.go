package tenancy

import "github.com/bwmarrin/snowflake"

// PlatformTarget is the only way platform-owner code reaches into a school.
// It must name the target school explicitly; there is no unscoped variant.
type PlatformTarget struct {
	scope Scope
}

func NewPlatformTarget(isPlatformAdmin bool, targetSchoolID snowflake.ID) (PlatformTarget, error) {
	if !isPlatformAdmin {
		return PlatformTarget{}, ErrPlatformAdminOnly
	}
	if targetSchoolID == 0 {
		return PlatformTarget{}, ErrMissingTargetSchool
	}
	return PlatformTarget{scope: Scope{schoolID: targetSchoolID}}, nil
}

// SystemTarget is used by in-process jobs such as invoice generation, which
// raise the platform charge for the school they are already scoped to.
func SystemTarget(s Scope) (PlatformTarget, error) {
	if !s.Valid() {
		return PlatformTarget{}, ErrMissingTenant
	}
	return PlatformTarget{scope: s}, nil
}

func (t PlatformTarget) Scope() Scope { return t.scope }

func (t PlatformTarget) SchoolID() snowflake.ID { return t.scope.schoolID }
