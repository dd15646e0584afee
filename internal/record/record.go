package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/provider"
	"github.com/vselutin/lineage/internal/vcs"
)

// Annotation — явное объявление параметра: --input/--output/--param.
// Пустое имя получает автогенерированное (input-N, output-N, param-N).
type Annotation struct {
	Name  string
	Value string
}

// Options — параметры захвата выполнения.
type Options struct {
	// Name — имя плана. Пустое — имя исполняемого файла команды.
	Name string

	// Description и Keywords переносятся в план как есть.
	Description string
	Keywords    []string

	// SuccessCodes — коды выхода, считающиеся успехом (пусто — {0}).
	SuccessCodes []int

	// Inputs/Outputs/Params — явные аннотации, переопределяющие
	// автоопределение по токенам командной строки.
	Inputs  []Annotation
	Outputs []Annotation
	Params  []Annotation

	// NoOutput разрешает выполнение без единого выхода.
	NoOutput bool

	// WorkDir — рабочая директория относительно корня проекта.
	WorkDir string

	// Agent записывается в activity.
	Agent string

	// SkipMetadata — выполнить и показать, что было бы записано,
	// но не сохранять план и activity.
	SkipMetadata bool
}

// PlanStore — сохранение новых планов.
type PlanStore interface {
	StorePlan(ctx context.Context, plan *domain.Plan) error
}

// ActivityStore — сохранение новых activities.
type ActivityStore interface {
	StoreActivity(ctx context.Context, activity *domain.Activity) error
}

// Hasher — вычисление идентичности содержимого путей.
type Hasher interface {
	CurrentHash(ctx context.Context, path string) (domain.ContentID, error)
}

// Result — итог захвата: план, запись выполнения и сырой результат
// команды.
type Result struct {
	Plan     *domain.Plan
	Activity *domain.Activity
	Exec     provider.UnitResult
}

// Recorder захватывает выполнения команд.
type Recorder struct {
	root       string
	backend    provider.Provider
	hasher     Hasher
	plans      PlanStore
	activities ActivityStore
	logger     *slog.Logger
	now        func() time.Time
}

// New создаёт Recorder. backend обязан выполнять команды в рабочем
// дереве проекта (захват опирается на локальную файловую систему).
func New(root string, backend provider.Provider, hasher Hasher, plans PlanStore, activities ActivityStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		root:       root,
		backend:    backend,
		hasher:     hasher,
		plans:      plans,
		activities: activities,
		logger:     logger,
		now:        time.Now,
	}
}

// draft — параметр в процессе сборки.
type draft struct {
	name     string
	kind     domain.ParameterKind
	prefix   string
	value    string
	position int
	explicit bool
	preHash  domain.ContentID // идентичность значения до выполнения (для входов)
}

// Run выполняет команду и записывает план и activity.
//
// Последовательность: классификация токенов → хеширование входов →
// снимок дерева → выполнение → разница снимков → финализация выходов
// → сохранение. Командная строка восстановима из плана без потерь.
func (r *Recorder) Run(ctx context.Context, argv []string, opts Options) (*Result, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	command, drafts, err := r.classify(argv, opts)
	if err != nil {
		return nil, err
	}

	// Идентичность входов фиксируется до выполнения: команда может
	// изменить их на месте.
	for _, d := range drafts {
		if d.kind != domain.KindInput {
			continue
		}
		checksum, err := r.hasher.CurrentHash(ctx, d.value)
		if err != nil {
			return nil, fmt.Errorf("hash input %s: %w", d.value, err)
		}
		d.preHash = checksum
	}

	before, err := takeSnapshot(r.root)
	if err != nil {
		return nil, fmt.Errorf("snapshot worktree: %w", err)
	}

	plan := r.assemblePlan(command, drafts, opts)
	values := make(map[string]string, len(drafts))
	for _, d := range drafts {
		values[d.name] = d.value
	}

	results, err := r.backend.Execute(ctx, []provider.ExecUnit{{
		Plan:    plan,
		Values:  values,
		WorkDir: opts.WorkDir,
	}}, r.root, nil)
	if err != nil {
		return nil, err
	}
	exec := results[0]
	if exec.Status != provider.UnitSucceeded {
		return &Result{Plan: plan, Exec: exec},
			fmt.Errorf("%w: exit code %d: %s", provider.ErrExecutionFailed, exec.ExitCode, exec.Error)
	}

	after, err := takeSnapshot(r.root)
	if err != nil {
		return nil, fmt.Errorf("snapshot worktree: %w", err)
	}

	drafts, err = r.finalizeOutputs(drafts, before.diff(after), opts)
	if err != nil {
		return nil, err
	}

	plan.Parameters = parameters(drafts)
	values = make(map[string]string, len(drafts))
	for _, d := range drafts {
		values[d.name] = d.value
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	activity, err := r.buildActivity(ctx, plan, drafts, values, exec, opts.Agent)
	if err != nil {
		return nil, err
	}

	if !opts.SkipMetadata {
		if err := r.plans.StorePlan(ctx, plan); err != nil {
			return nil, fmt.Errorf("store plan: %w", err)
		}
		if err := r.activities.StoreActivity(ctx, activity); err != nil {
			return nil, fmt.Errorf("store activity: %w", err)
		}
	}

	r.logger.Info("execution recorded",
		"plan", plan.Name,
		"inputs", len(plan.Inputs()),
		"outputs", len(plan.Outputs()),
		"skip_metadata", opts.SkipMetadata,
	)
	return &Result{Plan: plan, Activity: activity, Exec: exec}, nil
}

// classify разбирает argv на ведущие токены команды и параметры.
//
// Правила: первый токен — всегда команда; токен, существующий как
// путь, — вход; флаг, за которым следует путь (отдельным токеном или
// через "="), — вход с префиксом; после первого параметра каждый
// дальнейший токен становится параметром (литералы — argument), чтобы
// командная строка восстанавливалась из позиций без потерь.
func (r *Recorder) classify(argv []string, opts Options) ([]string, []*draft, error) {
	byValue := make(map[string]*draft)
	drafts := make([]*draft, 0)
	appendExplicit := func(kind domain.ParameterKind, anns []Annotation) {
		for _, ann := range anns {
			d := &draft{name: ann.Name, kind: kind, value: ann.Value, explicit: true}
			byValue[ann.Value] = d
			drafts = append(drafts, d)
		}
	}
	appendExplicit(domain.KindInput, opts.Inputs)
	appendExplicit(domain.KindOutput, opts.Outputs)
	appendExplicit(domain.KindArgument, opts.Params)

	command := make([]string, 0, len(argv))
	position := 0
	started := false

	place := func(d *draft, prefix string) {
		position++
		d.position = position
		if prefix != "" {
			d.prefix = prefix
		}
		started = true
	}

	for i := 0; i < len(argv); i++ {
		tok := argv[i]

		if i == 0 {
			command = append(command, tok)
			continue
		}

		if d, ok := byValue[tok]; ok && d.position == 0 {
			place(d, "")
			continue
		}

		if strings.HasPrefix(tok, "-") {
			if eq := strings.Index(tok, "="); eq > 0 {
				value := tok[eq+1:]
				if d, ok := byValue[value]; ok && d.position == 0 {
					place(d, tok[:eq+1])
					continue
				}
				if r.pathExists(value) {
					d := r.addDetected(&drafts, byValue, domain.KindInput, value)
					place(d, tok[:eq+1])
					continue
				}
			}
			if i+1 < len(argv) {
				next := argv[i+1]
				if d, ok := byValue[next]; ok && d.position == 0 {
					place(d, tok+" ")
					i++
					continue
				}
				if r.pathExists(next) {
					d := r.addDetected(&drafts, byValue, domain.KindInput, next)
					place(d, tok+" ")
					i++
					continue
				}
			}
			if !started {
				command = append(command, tok)
			} else {
				d := r.addDetected(&drafts, byValue, domain.KindArgument, tok)
				place(d, "")
			}
			continue
		}

		if r.pathExists(tok) {
			d := r.addDetected(&drafts, byValue, domain.KindInput, tok)
			place(d, "")
			continue
		}

		if !started {
			command = append(command, tok)
		} else {
			d := r.addDetected(&drafts, byValue, domain.KindArgument, tok)
			place(d, "")
		}
	}

	// Явные аннотации вне командной строки: входы обязаны существовать,
	// выходы могут появиться позже, параметры доступны через окружение.
	for _, d := range drafts {
		if d.position != 0 || !d.explicit {
			continue
		}
		if d.kind == domain.KindInput && !r.pathExists(d.value) {
			return nil, nil, fmt.Errorf("%w: input %s", ErrAnnotationUnused, d.value)
		}
	}

	assignNames(drafts)
	return command, drafts, nil
}

// addDetected создаёт автоопределённый draft для значения.
func (r *Recorder) addDetected(drafts *[]*draft, byValue map[string]*draft, kind domain.ParameterKind, value string) *draft {
	d := &draft{kind: kind, value: value}
	byValue[value] = d
	*drafts = append(*drafts, d)
	return d
}

func (r *Recorder) pathExists(path string) bool {
	_, err := os.Stat(filepath.Join(r.root, path))
	return err == nil
}

// finalizeOutputs сверяет разницу снимков с параметрами: изменённый
// вход переклассифицируется в выход (обновление на месте), изменённые
// пути вне командной строки добавляются выходами без позиции.
func (r *Recorder) finalizeOutputs(drafts []*draft, changed []string, opts Options) ([]*draft, error) {
	covered := make(map[string]*draft, len(drafts))
	for _, d := range drafts {
		covered[d.value] = d
	}

	for _, path := range changed {
		if d, ok := covered[path]; ok {
			// вход, изменённый на месте, и литерал, оказавшийся
			// созданным файлом, переклассифицируются в выходы
			if !d.explicit && (d.kind == domain.KindInput || d.kind == domain.KindArgument) {
				d.kind = domain.KindOutput
				d.name = "" // автоимя выдаётся заново по новой роли
			}
			continue
		}
		drafts = append(drafts, &draft{kind: domain.KindOutput, value: path})
	}

	assignNames(drafts)

	outputs := 0
	for _, d := range drafts {
		if d.kind == domain.KindOutput {
			outputs++
		}
	}
	if outputs == 0 && !opts.NoOutput {
		return nil, ErrNoOutputs
	}
	return drafts, nil
}

// assignNames выдаёт автогенерированные имена безымянным draft'ам,
// избегая коллизий с явными именами.
func assignNames(drafts []*draft) {
	taken := make(map[string]bool, len(drafts))
	for _, d := range drafts {
		if d.name != "" {
			taken[d.name] = true
		}
	}
	counters := map[domain.ParameterKind]int{}
	stem := map[domain.ParameterKind]string{
		domain.KindInput:    "input",
		domain.KindOutput:   "output",
		domain.KindArgument: "param",
	}
	for _, d := range drafts {
		if d.name != "" {
			continue
		}
		for {
			counters[d.kind]++
			name := fmt.Sprintf("%s-%d", stem[d.kind], counters[d.kind])
			if !taken[name] {
				d.name = name
				taken[name] = true
				break
			}
		}
	}
}

// assemblePlan строит план из команды и текущих draft'ов.
func (r *Recorder) assemblePlan(command []string, drafts []*draft, opts Options) *domain.Plan {
	name := opts.Name
	if name == "" {
		name = filepath.Base(command[0])
	}
	quoted := make([]string, len(command))
	for i, tok := range command {
		quoted[i] = quoteToken(tok)
	}
	return &domain.Plan{
		ID:           uuid.New(),
		Name:         name,
		Description:  opts.Description,
		Keywords:     opts.Keywords,
		Command:      strings.Join(quoted, " "),
		Parameters:   parameters(drafts),
		SuccessCodes: opts.SuccessCodes,
		CreatedAt:    r.now(),
	}
}

// quoteToken оборачивает токен в одинарные кавычки, если он содержит
// символы, значимые для шелла: шаблон команды хранится готовым к
// исполнению через sh -c.
func quoteToken(tok string) string {
	if !strings.ContainsAny(tok, " \t\n'\"$&|;<>()*?#~`\\") {
		return tok
	}
	return "'" + strings.ReplaceAll(tok, "'", `'\''`) + "'"
}

func parameters(drafts []*draft) []domain.CommandParameter {
	params := make([]domain.CommandParameter, 0, len(drafts))
	for _, d := range drafts {
		params = append(params, domain.CommandParameter{
			Name:     d.name,
			Kind:     d.kind,
			Position: d.position,
			Prefix:   d.prefix,
			Default:  d.value,
		})
	}
	return params
}

// buildActivity хеширует фактические входы/выходы и собирает запись
// выполнения. Входы получают идентичность, зафиксированную до
// выполнения; выходы — текущую.
func (r *Recorder) buildActivity(ctx context.Context, plan *domain.Plan, drafts []*draft, values map[string]string, exec provider.UnitResult, agent string) (*domain.Activity, error) {
	activity := &domain.Activity{
		ID:        uuid.New(),
		PlanID:    plan.ID,
		StartedAt: exec.StartedAt,
		EndedAt:   exec.EndedAt,
		Agent:     agent,
		Values:    values,
	}

	for _, d := range drafts {
		switch d.kind {
		case domain.KindInput:
			activity.Usages = append(activity.Usages, domain.Usage{
				Entity: domain.Entity{Path: d.value, Checksum: d.preHash},
				Role:   d.name,
			})
		case domain.KindOutput:
			checksum, err := r.hasher.CurrentHash(ctx, d.value)
			if err != nil {
				if errors.Is(err, vcs.ErrPathMissing) {
					return nil, fmt.Errorf("plan %q: declared output %s was not produced", plan.Name, d.value)
				}
				return nil, fmt.Errorf("hash output %s: %w", d.value, err)
			}
			activity.Generations = append(activity.Generations, domain.Generation{
				Entity: domain.Entity{Path: d.value, Checksum: checksum},
				Role:   d.name,
			})
			// вход, обновлённый на месте: usage с идентичностью до
			// выполнения сохраняется рядом с generation
			if d.preHash != "" {
				activity.Usages = append(activity.Usages, domain.Usage{
					Entity: domain.Entity{Path: d.value, Checksum: d.preHash},
					Role:   d.name,
				})
			}
		}
	}
	return activity, nil
}
