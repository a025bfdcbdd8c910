package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"mcworldtools/internal/ident"
	"mcworldtools/internal/input"
	"mcworldtools/internal/tools"
	"mcworldtools/internal/world"
)

var (
	// ErrNeedOutput is returned when a search action runs without -o.
	ErrNeedOutput = errors.New("for this action you have to state an output file as command argument (-o)")
	// ErrBadInput wraps an input-file value the schema let through but the
	// tool cannot use.
	ErrBadInput = errors.New("invalid input file value")
)

// Plan is a fully parameterized tool plus the warning shown before it
// mutates anything.
type Plan struct {
	Tool    tools.Tool
	Warning string
}

var actionNames = []string{"Find", "Remove"}

func orEmpty(in *input.File) *input.File {
	if in == nil {
		return &input.File{}
	}
	return in
}

func (p *Prompter) action(in *input.File) (tools.Action, error) {
	if in.Action.Has() {
		a := tools.Action(in.Action.Value)
		p.Printf("Using action %q\n", actionNames[a-1])
		return a, nil
	}
	n, err := p.Choose("\nChoose what you want to do.", "Select an action", actionNames, false)
	if err != nil {
		return 0, err
	}
	p.Printf("Using action %q\n", actionNames[n-1])
	return tools.Action(n), nil
}

// UnusedChunks collects the inhabited time threshold.
func (p *Prompter) UnusedChunks(in *input.File) (Plan, error) {
	in = orEmpty(in)
	var secs int64
	if in.InhabitedTime.Has() {
		secs = in.InhabitedTime.Value
		p.Printf("Using a maximum inhabited time of %d seconds\n", secs)
	} else {
		p.Printf("\nChunks in which players spent at most this many seconds are removed.\n")
		for {
			a, err := p.Line("Maximum inhabited time in seconds (default 0): ")
			if err != nil {
				return Plan{}, err
			}
			if a == "" {
				break
			}
			n, err := strconv.ParseInt(a, 10, 64)
			if err != nil || n < 0 {
				p.Printf("Please state a number of at least 0.\n")
				continue
			}
			secs = n
			break
		}
	}
	return Plan{
		Tool: tools.UnusedChunks{InhabitedSeconds: secs},
		Warning: fmt.Sprintf("This operation will remove all chunks in which players spent at most %d seconds.\n"+
			"Therefore, chunks with changed blocks may be removed since players can change blocks even if they are not in the chunk.", secs),
	}, nil
}

var locationRE = regexp.MustCompile(`^(-?\d+)\s+(-?\d+)\s+(-?\d+)$`)

// ParseLocation reads "X Y Z".
func ParseLocation(s string) (ident.BlockPos, bool) {
	m := locationRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ident.BlockPos{}, false
	}
	x, _ := strconv.Atoi(m[1])
	y, _ := strconv.Atoi(m[2])
	z, _ := strconv.Atoi(m[3])
	return ident.BlockPos{X: x, Y: y, Z: z}, true
}

// CommandBlocks collects the action and its filters.
func (p *Prompter) CommandBlocks(in *input.File, hasOutput bool) (Plan, error) {
	in = orEmpty(in)
	action, err := p.action(in)
	if err != nil {
		return Plan{}, err
	}
	if action == tools.Find && !hasOutput {
		return Plan{}, ErrNeedOutput
	}
	c := tools.CommandBlocks{Action: action}

	if in.Types.Has() {
		c.Types = in.Types.Value
		p.Printf("Using command block types: %s\n", strings.Join(c.Types, ", "))
	} else {
		p.Printf("\nChoose the command block types (%s). Separate by commas or leave empty for all.\n", strings.Join(tools.Kinds(), ", "))
		for {
			a, err := p.Line("Types: ")
			if err != nil {
				return Plan{}, err
			}
			types, ok := parseTypes(a)
			if !ok {
				p.Printf("Unknown type.\n")
				continue
			}
			c.Types = types
			break
		}
	}

	if action == tools.Find {
		if in.OnlyExecuting.Has() {
			c.OnlyExecuting = in.OnlyExecuting.Value
		} else {
			p.Printf("\nDo you want to only search for executing command blocks? (i.e. either powered or auto)\n")
			if c.OnlyExecuting, err = p.YesNo("Only search for executing command blocks? (y/N): ", false); err != nil {
				return Plan{}, err
			}
		}
		return Plan{Tool: c}, nil
	}

	if in.Locations.Set {
		c.Locations = in.Locations.Value
	} else {
		p.Printf("\nChoose locations where command blocks should be removed. Enter nothing once you are finished.\n" +
			"Leave empty to remove command blocks everywhere.\n" +
			"Use the following format for locations: \"X Y Z\" (e.g. 12 71 8)\n")
		for {
			a, err := p.Line(fmt.Sprintf("%d. Location: ", len(c.Locations)+1))
			if err != nil {
				return Plan{}, err
			}
			if a == "" {
				break
			}
			loc, ok := ParseLocation(a)
			if !ok {
				p.Printf("Invalid location.\n")
				continue
			}
			c.Locations = append(c.Locations, loc)
		}
	}
	n := len(c.Locations)
	if n > 0 {
		p.Printf("Using %d location%s.\n", n, plural(n))
	}
	what := "all command blocks of the chosen types"
	if n > 0 {
		what = "the command blocks at the given locations"
	}
	return Plan{Tool: c, Warning: fmt.Sprintf("This operation will remove %s permanently.", what)}, nil
}

func parseTypes(s string) ([]string, bool) {
	if strings.TrimSpace(s) == "" {
		return tools.Kinds(), true
	}
	valid := map[string]bool{}
	for _, k := range tools.Kinds() {
		valid[k] = true
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		k := strings.ToLower(strings.TrimSpace(part))
		if !valid[k] {
			return nil, false
		}
		out = append(out, k)
	}
	return out, true
}

// Entities collects the action and its filters.
func (p *Prompter) Entities(in *input.File, hasOutput bool) (Plan, error) {
	in = orEmpty(in)
	action, err := p.action(in)
	if err != nil {
		return Plan{}, err
	}
	if action == tools.Find {
		if !hasOutput {
			return Plan{}, ErrNeedOutput
		}
		e, err := p.findEntities(in)
		return Plan{Tool: e}, err
	}
	return p.removeEntities(in)
}

func (p *Prompter) findEntities(in *input.File) (tools.Entities, error) {
	e := tools.Entities{Action: tools.Find}
	var err error

	switch {
	case in.ID.Set:
		e.ID = in.ID.Value
	default:
		p.Printf("\nChoose an entity id to filter entities. Enter nothing for all entities.\n")
		if e.ID, err = p.Line("Entity id: "); err != nil {
			return e, err
		}
	}
	if e.ID != "" {
		p.Printf("Using entity id %q\n", ident.CanonicalID(e.ID))
	}

	switch {
	case in.Dimension.Set:
		e.Dimension = world.Dimension(in.Dimension.Value)
	default:
		p.Printf("\nChoose a dimension where entities should be searched. Enter nothing for all dimensions.\n"+
			"It can be one of %s\n", dimensionList())
		for {
			a, err := p.Line("Dimension: ")
			if err != nil {
				return e, err
			}
			d := world.Dimension(strings.ToLower(a))
			if d != "" && !d.Valid() {
				p.Printf("Unknown dimension.\n")
				continue
			}
			e.Dimension = d
			break
		}
	}

	switch {
	case in.NBTKeys.Set:
		e.IncludeNBT = !in.NBTKeys.Null
		e.NBTKeys = in.NBTKeys.Value
	default:
		p.Printf("\nDo you want to include the NBT data of the entities in the output?\n")
		if e.IncludeNBT, err = p.YesNo("Include NBT data? (y/N): ", false); err != nil {
			return e, err
		}
		if e.IncludeNBT {
			a, err := p.Line("NBT keys to include, separated by commas (empty for all): ")
			if err != nil {
				return e, err
			}
			for _, k := range strings.Split(a, ",") {
				if k = strings.TrimSpace(k); k != "" {
					e.NBTKeys = append(e.NBTKeys, k)
				}
			}
		}
	}
	return e, nil
}

func (p *Prompter) removeEntities(in *input.File) (Plan, error) {
	e := tools.Entities{Action: tools.Remove}
	if in.Dimension.Has() {
		e.Dimension = world.Dimension(in.Dimension.Value)
	}
	if in.RemoveBy.Has() {
		by, err := tools.ParseRemoveBy(in.RemoveBy.Value)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %v", ErrBadInput, err)
		}
		e.RemoveBy = by
	} else {
		p.Printf("\nDo you want to remove by \"id\", by \"uuid\" or remove \"all\" entities?\n")
		for {
			a, err := p.Line("Remove by: ")
			if err != nil {
				return Plan{}, err
			}
			by, err := tools.ParseRemoveBy(a)
			if err != nil {
				p.Printf("Please state one of \"id\", \"uuid\", \"all\"\n")
				continue
			}
			e.RemoveBy = by
			break
		}
	}

	var what string
	switch e.RemoveBy {
	case tools.ByID:
		if in.ID.Has() && ident.CanonicalID(in.ID.Value) != "" {
			e.ID = in.ID.Value
		} else {
			p.Printf("\nChoose an entity id of which entities should be removed.\n")
			for ident.CanonicalID(e.ID) == "" {
				a, err := p.Line("Entity id: ")
				if err != nil {
					return Plan{}, err
				}
				if ident.CanonicalID(a) == "" {
					p.Printf("Please state an entity id.\n")
				}
				e.ID = a
			}
		}
		p.Printf("Using entity id %q\n", ident.CanonicalID(e.ID))
		what = "the entities with the given id"
	case tools.ByUUID:
		if in.UUID.Has() {
			u, err := ident.ParseUUID(in.UUID.Value)
			if err != nil {
				return Plan{}, fmt.Errorf("%w: uuid: %v", ErrBadInput, err)
			}
			e.UUID = u
		} else {
			p.Printf("\nState the uuid of the entity that should be removed.\n")
			for {
				a, err := p.Line("UUID: ")
				if err != nil {
					return Plan{}, err
				}
				if a == "" {
					p.Printf("Please state a uuid.\n")
					continue
				}
				u, err := ident.ParseUUID(a)
				if err != nil {
					p.Printf("Invalid uuid.\n")
					continue
				}
				e.UUID = u
				break
			}
		}
		p.Printf("Using uuid %q\n", e.UUID.String())
		what = "the entity with the given uuid"
	default:
		what = "ALL entities"
	}
	return Plan{Tool: e, Warning: fmt.Sprintf("This operation will remove %s permanently.", what)}, nil
}

func dimensionList() string {
	names := make([]string, len(world.All))
	for i, d := range world.All {
		names[i] = strconv.Quote(string(d))
	}
	return strings.Join(names, ", ")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
