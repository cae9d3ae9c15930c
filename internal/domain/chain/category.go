package chain

// Category classifies a ticket by the department that owns it.
type Category string

const (
	CategoryDispatch          Category = "dispatch"
	CategoryTurnup            Category = "turnup"
	CategoryShipping          Category = "shipping"
	CategoryProjectManagement Category = "project_management"
	CategoryOther             Category = "other"
)

// departmentCategories is the fixed department-to-category lookup used by the
// ticketing system. Departments not listed here fall back to CategoryOther.
var departmentCategories = map[string]Category{
	"FST Accounting":   CategoryDispatch,
	"Dispatch":         CategoryDispatch,
	"Pro Services":     CategoryDispatch,
	"Turnups":          CategoryTurnup,
	"Shipping":         CategoryShipping,
	"Turn up Projects": CategoryProjectManagement,
}

// CategoryForDepartment maps a department title to its ticket category.
func CategoryForDepartment(department string) Category {
	if c, ok := departmentCategories[department]; ok {
		return c
	}
	return CategoryOther
}

// DefaultExcludedDepartments are departments whose tickets never participate
// in chain analysis. This is a business rule, not an error path.
var DefaultExcludedDepartments = []string{
	"Add to NPM",
	"Helpdesk Tier 1",
	"Helpdesk Tier 2",
	"Helpdesk Tier 3",
	"Engineering",
}

// DefaultExcludedTypes are ticket types excluded from chain listings.
var DefaultExcludedTypes = []string{
	"3rd Party Turnup",
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryDispatch, CategoryTurnup, CategoryShipping, CategoryProjectManagement, CategoryOther:
		return true
	}
	return false
}
