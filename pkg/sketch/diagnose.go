package sketch

import "fmt"

// Severity indicates whether a finding blocks solving or is advisory.
type Severity int

const (
	SeverityError   Severity = iota // blocks solving
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Finding is a single diagnostic about a sketch.
type Finding struct {
	Entity     EntityID     // zero if sketch-level
	Constraint ConstraintID // zero if not about a constraint
	Message    string
	Severity   Severity
}

func (f Finding) String() string {
	switch {
	case f.Constraint != "":
		return fmt.Sprintf("[%s] constraint %s: %s", f.Severity, f.Constraint, f.Message)
	case f.Entity != "":
		return fmt.Sprintf("[%s] entity %s: %s", f.Severity, f.Entity, f.Message)
	default:
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
}

// Diagnose reports advisory findings about the constraint graph. It is
// read-only and never mutates the sketch.
func (s *Sketch) Diagnose() []Finding {
	var out []Finding

	for _, e := range s.entities {
		if err := e.validate(); err != nil {
			out = append(out, Finding{Entity: e.EntityID(), Message: err.Error(), Severity: SeverityError})
		}
	}

	dof := s.DegreesOfFreedom()
	switch {
	case dof > 0:
		out = append(out, Finding{
			Message:  fmt.Sprintf("under-constrained: %d degrees of freedom remain", dof),
			Severity: SeverityWarning,
		})
	case dof < 0:
		out = append(out, Finding{
			Message:  fmt.Sprintf("over-constrained: %d more equations than parameters", -dof),
			Severity: SeverityWarning,
		})
	}

	referenced := make(map[EntityID]bool)
	for _, r := range s.constraints {
		for _, id := range r.Constraint.Entities() {
			referenced[id] = true
		}
	}
	for _, e := range s.entities {
		if !referenced[e.EntityID()] {
			out = append(out, Finding{
				Entity:   e.EntityID(),
				Message:  "no constraints reference this entity",
				Severity: SeverityWarning,
			})
		}
	}

	for _, r := range s.constraints {
		allConstruction := true
		for _, id := range r.Constraint.Entities() {
			if !s.entities[s.index[id]].IsConstruction() {
				allConstruction = false
				break
			}
		}
		if allConstruction {
			out = append(out, Finding{
				Constraint: r.ID,
				Message:    "constrains construction geometry only",
				Severity:   SeverityWarning,
			})
		}
	}

	return out
}
