package domain

// Role is one of the fixed set of capability grants recognized by the
// ledger. Roles are a closed enumeration; open-ended tags are rejected at
// the grant boundary.
type Role string

// Role kinds. Administrator is seeded for the deploying identity at store
// construction and is the only kind allowed to administer grants and the
// pause switch.
const (
	RoleAdministrator    Role = "administrator"
	RoleDevice           Role = "device"
	RoleFarmer           Role = "farmer"
	RoleSupplyChainActor Role = "supply_chain_actor"
	RoleResearcher       Role = "researcher"
)

// Roles lists every recognized role kind in a stable order.
func Roles() []Role {
	return []Role{
		RoleAdministrator,
		RoleDevice,
		RoleFarmer,
		RoleSupplyChainActor,
		RoleResearcher,
	}
}

// Valid reports whether r is a recognized role kind.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleDevice, RoleFarmer, RoleSupplyChainActor, RoleResearcher:
		return true
	}
	return false
}
