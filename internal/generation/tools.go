package generation

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"leadfunnel_backend/internal/extract"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/platform/phone"
)

// runState collects what the tools observed during one Generate call.
type runState struct {
	mu         sync.Mutex
	locationID string
	captured   leadstate.Captured
	detected   string
	urls       []string
}

type runKey struct{}

func withRun(ctx context.Context, st *runState) context.Context {
	return context.WithValue(ctx, runKey{}, st)
}

func runFrom(ctx context.Context) *runState {
	st, _ := ctx.Value(runKey{}).(*runState)
	return st
}

var urlRe = regexp.MustCompile(`https?://[^\s)\]>,"]+`)

func (s *runState) addURLs(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urlRe.FindAllString(text, -1) {
		s.urls = append(s.urls, strings.TrimRight(u, ".;:!?"))
	}
}

type GetCampusInfoInput struct {
	Campus string `json:"campus,omitempty"` // campus name; empty means the current one
}

type GetCampusInfoOutput struct {
	Found bool   `json:"found"`
	Info  string `json:"info"`
}

type GetObjectionResponseInput struct {
	Topic string `json:"topic"` // e.g. colegiaturas, becas, uniformes
}

type GetObjectionResponseOutput struct {
	Answer string `json:"answer"`
}

type SaveLeadDataInput struct {
	Campus  string `json:"campus,omitempty"`
	Program string `json:"programa,omitempty"`
	Name    string `json:"nombreCompleto,omitempty"`
	Phone   string `json:"telefono,omitempty"`
	Email   string `json:"email,omitempty"`
}

type SaveLeadDataOutput struct {
	Saved []string `json:"saved"`
}

type toolDeps struct {
	campuses   CampusDirectory
	objections Objections
}

func (d *toolDeps) getCampusInfo(ctx context.Context, in GetCampusInfoInput) (GetCampusInfoOutput, error) {
	st := runFrom(ctx)
	locationID := ""
	if ref := strings.TrimSpace(in.Campus); ref != "" {
		locationID, _ = d.campuses.Resolve(ref)
	} else if st != nil {
		locationID = st.locationID
	}

	c, ok := d.campuses.Get(locationID)
	if !ok {
		return GetCampusInfoOutput{
			Found: false,
			Info:  "No se encontró ese plantel. Planteles disponibles: " + strings.Join(d.campuses.Names(), ", "),
		}, nil
	}

	info := c.Describe()
	if st != nil {
		st.addURLs(info)
	}
	return GetCampusInfoOutput{Found: true, Info: info}, nil
}

func (d *toolDeps) getObjectionResponse(ctx context.Context, in GetObjectionResponseInput) (GetObjectionResponseOutput, error) {
	answer := d.objections.Snapshot().Answer(in.Topic)
	if st := runFrom(ctx); st != nil {
		st.addURLs(answer)
	}
	return GetObjectionResponseOutput{Answer: answer}, nil
}

func (d *toolDeps) saveLeadData(ctx context.Context, in SaveLeadDataInput) (SaveLeadDataOutput, error) {
	var partial leadstate.Captured
	var saved []string

	if ref := strings.TrimSpace(in.Campus); ref != "" {
		if id, ok := d.campuses.Resolve(ref); ok {
			partial.Campus = d.campuses.Name(id)
			saved = append(saved, "campus")
			if st := runFrom(ctx); st != nil {
				st.mu.Lock()
				st.detected = id
				st.mu.Unlock()
			}
		}
	}
	if p := strings.TrimSpace(in.Program); p != "" {
		if lvl := extract.Level(p); lvl != "" {
			p = lvl
		}
		partial.Program = p
		saved = append(saved, "programa")
	}
	if n := strings.TrimSpace(in.Name); n != "" {
		partial.Name = n
		saved = append(saved, "nombre_completo")
	}
	if ten := phone.LastTen(in.Phone); ten != "" {
		partial.Phone = ten
		saved = append(saved, "telefono")
	}
	if e := extract.Email(in.Email); e != "" {
		partial.Email = e
		saved = append(saved, "email")
	}

	if st := runFrom(ctx); st != nil {
		st.mu.Lock()
		st.captured = st.captured.Merge(partial)
		st.mu.Unlock()
	}
	return SaveLeadDataOutput{Saved: saved}, nil
}

func buildTools(d *toolDeps) ([]tool.Tool, error) {
	campusTool, err := functiontool.New(functiontool.Config{
		Name:        "get_campus_info",
		Description: "Returns address, phone, website and available levels for a campus.",
	}, func(ctx tool.Context, in GetCampusInfoInput) (GetCampusInfoOutput, error) {
		return d.getCampusInfo(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	objectionTool, err := functiontool.New(functiontool.Config{
		Name:        "get_objection_response",
		Description: "Returns the official answer for a common concern such as tuition, scholarships, uniforms or schedules.",
	}, func(ctx tool.Context, in GetObjectionResponseInput) (GetObjectionResponseOutput, error) {
		return d.getObjectionResponse(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	saveTool, err := functiontool.New(functiontool.Config{
		Name:        "save_lead_data",
		Description: "Stores the lead fields the user confirmed: campus, programa, nombreCompleto, telefono, email. Send only the fields you learned.",
	}, func(ctx tool.Context, in SaveLeadDataInput) (SaveLeadDataOutput, error) {
		return d.saveLeadData(ctx, in)
	})
	if err != nil {
		return nil, err
	}

	return []tool.Tool{campusTool, objectionTool, saveTool}, nil
}
