package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/wildstyl3r/lpt/internal/constants"
	"github.com/wildstyl3r/lpt/internal/utils"
)

// ErrConfiguration marks missing or invalid input. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	OutputDir string
	Runs      map[string]RunParameters
	RunParameters
	LogLevel     string
	isDefinedMap map[string]struct{}

	InputUnits []string
	MeshUnit   string
	meshUnits  []string
}

func (c *Config) isDefined(path []string, meta *toml.MetaData) bool {
	if _, sureDefined := c.isDefinedMap[strings.Join(path, "#")]; sureDefined {
		return true
	} else {
		return meta.IsDefined(path...)
	}
}

// LoadConfig decodes configFileName (the .toml suffix is optional). A file
// without [Runs.<name>] tables describes a single run named after the file.
func LoadConfig(configFileName string) (Config, toml.MetaData, error) {
	var config Config
	config.isDefinedMap = map[string]struct{}{}
	if !strings.HasSuffix(configFileName, ".toml") {
		configFileName += ".toml"
	}
	meta, err := toml.DecodeFile(configFileName, &config)
	if err != nil {
		return config, meta, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config, meta, fmt.Errorf("%w: unknown keys %v", ErrConfiguration, undecoded)
	}
	err = config.prepare(utils.GetFilename(configFileName))
	return config, meta, err
}

// DecodeConfig is LoadConfig over an in-memory document.
func DecodeConfig(data, name string) (Config, toml.MetaData, error) {
	var config Config
	config.isDefinedMap = map[string]struct{}{}
	meta, err := toml.Decode(data, &config)
	if err != nil {
		return config, meta, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config, meta, fmt.Errorf("%w: unknown keys %v", ErrConfiguration, undecoded)
	}
	err = config.prepare(name)
	return config, meta, err
}

func (config *Config) prepare(name string) error {
	var unitsConflict []string
	config.InputUnits, unitsConflict = checkUnits(config.InputUnits)
	if len(unitsConflict) > 0 {
		return fmt.Errorf("%w: input unit conflict %v", ErrConfiguration, unitsConflict)
	}
	var err error
	if config.meshUnits, err = meshUnits(config.MeshUnit); err != nil {
		return err
	}
	if len(config.Runs) == 0 {
		config.Runs = map[string]RunParameters{name: {}}
	}
	if config.OutputDir == "" {
		config.OutputDir = "."
	}
	return nil
}

type RunParameters struct {
	Boundary     string    // text boundary file, see geom.ReadBoundary
	BoundaryBox  []float64 // xmin ymin zmin xmax ymax zmax
	OpenSurfaces []int
	Dimensions   int // 2: segment boundary in the xy plane, 3: triangulated

	Dt        float64 // [s]
	Steps     int
	StartTime float64 // [s]

	Diameter    float64 // [InputUnits]
	Density     float64 // [kg m^-3]
	Restitution float64
	Drag        string // stokes | schiller-naumann | none
	Wear        string // kinetic | mclaury | oka

	Gravity        []float64 // [m s^-2]
	Omega          []float64 // [rad s^-1]
	FluidDensity   float64   // [kg m^-3]
	FluidViscosity float64   // [Pa s]

	Flow           string    // still | uniform | gyre | gyre3d | rotation
	FlowVelocity   []float64 // [mesh units s^-1]
	FlowAmplitude  float64
	SnapshotTimes  []float64 // [s]
	MeshResolution int

	NParticles      int
	SeedBox         []float64
	SeedFile        string
	InitialVelocity string // zero | fluid
	RandomSeed      int64

	MaxBounces int
	Ranks      int
	Partition  string // x | y | z | roundrobin
	Compress   bool
	SaveEvery  int
	MakeDir    bool
	Fields     []string

	_verbose bool
}

func (p *RunParameters) Verbose() bool {
	return p._verbose
}

func (p *RunParameters) SetVerbosity(verbose bool) {
	p._verbose = verbose
}

var defaultValues = map[string]any{ // in SI
	"Dimensions":      3,
	"StartTime":       0.,
	"Restitution":     1.,
	"Drag":            "stokes",
	"Wear":            "mclaury",
	"Gravity":         []float64{0, 0, 0},
	"Omega":           []float64{0, 0, 0},
	"FluidDensity":    constants.WaterDensity,
	"FluidViscosity":  constants.WaterViscosity,
	"Flow":            "still",
	"FlowVelocity":    []float64{0, 0, 0},
	"FlowAmplitude":   0.1,
	"NParticles":      100,
	"InitialVelocity": "zero",
	"RandomSeed":      int64(1),
	"MaxBounces":      constants.MaxBouncesPerStep,
	"Ranks":           1,
	"Partition":       "x",
	"Compress":        false,
	"SaveEvery":       1,
	"MakeDir":         true,
}

var requiredFields = []string{"Dt", "Steps", "Diameter", "Density"}

var fieldsXor = map[string][]string{
	"Boundary":    {"BoundaryBox"},
	"BoundaryBox": {"Boundary"},
	"SeedBox":     {"SeedFile"},
	"SeedFile":    {"SeedBox"},
}

var fieldsAnd = map[string][]string{
	"MeshResolution": {"SnapshotTimes"},
}

var fieldsOneOf = [][]string{
	{"Boundary", "BoundaryBox"},
}

var valueUnits = map[string][]UnitElement{
	"Diameter": {
		{Class: Length, Power: 1},
	},
	"Density": {
		{Class: Mass, Power: 1},
		{Class: Length, Power: -3},
	},
	"FluidDensity": {
		{Class: Mass, Power: 1},
		{Class: Length, Power: -3},
	},
	"FluidViscosity": {
		{Class: Mass, Power: 1},
		{Class: Length, Power: -1},
		{Class: Time, Power: -1},
	},
	"Gravity": {
		{Class: Length, Power: 1},
		{Class: Time, Power: -2},
	},
	"Dt": {
		{Class: Time, Power: 1},
	},
	"StartTime": {
		{Class: Time, Power: 1},
	},
}

var vectorLengths = map[string]int{
	"BoundaryBox":  6,
	"SeedBox":      6,
	"Gravity":      3,
	"Omega":        3,
	"FlowVelocity": 3,
}

var auxFieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// convert rescales every named float or float-slice field between SI and units.
func (runConfig *RunParameters) convert(parameterNames, units []string, direct bool) {
	runConfigReflect := reflect.ValueOf(runConfig).Elem()
	for name := range parameterNames {
		classes, some := valueUnits[parameterNames[name]]
		if !some {
			continue
		}
		field := runConfigReflect.FieldByName(parameterNames[name])
		switch {
		case field.CanFloat():
			field.SetFloat(SI(field.Float(), classes, units, direct))
		case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Float64:
			scaled := make([]float64, field.Len())
			for i := range scaled {
				scaled[i] = SI(field.Index(i).Float(), classes, units, direct)
			}
			field.Set(reflect.ValueOf(scaled))
		}
	}
}

func (runConfig *RunParameters) checkFieldProblems(path []string, meta *toml.MetaData, globalConfig *Config) (ambiguities [][]string) {
	for field := range fieldsXor {
		if globalConfig.isDefined(append(slices.Clone(path), field), meta) {
			var foundAlternatives []string
			for alternative := range fieldsXor[field] {
				if globalConfig.isDefined(append(slices.Clone(path), fieldsXor[field][alternative]), meta) {
					foundAlternatives = append(foundAlternatives, fieldsXor[field][alternative])
				}
			}

			if len(foundAlternatives) > 0 {
				ambiguities = append(ambiguities, append([]string{field}, foundAlternatives...))
			}
		}
	}
	return
}

/*
field value priority:
1. run
2. global
3. default

a field set on the run level also hides the global value of its xor
alternatives, so a run may switch from BoundaryBox to Boundary.
*/

// CheckAndUnify fills runConfig from the global section and the defaults,
// converts dimensional values into the mesh unit system and validates the
// result. Errors wrap ErrConfiguration.
func (runConfig *RunParameters) CheckAndUnify(runName string, config *Config, meta *toml.MetaData) error {
	globalAmbiguities := config.checkFieldProblems([]string{}, meta, config)
	localAmbiguities := runConfig.checkFieldProblems([]string{"Runs", runName}, meta, config)
	if len(globalAmbiguities) > 0 {
		return fmt.Errorf("%w: global ambiguities %v", ErrConfiguration, globalAmbiguities)
	}
	if len(localAmbiguities) > 0 {
		return fmt.Errorf("%w: run %s ambiguities %v", ErrConfiguration, runName, localAmbiguities)
	}

	var discoveredParameters []string

	var excludeFromLoadingDefaultOrOuter map[string]struct{} = make(map[string]struct{})
	runConfigReflect := reflect.ValueOf(runConfig).Elem()
	runConfigType := runConfigReflect.Type()
	for i := range runConfigReflect.NumField() {
		fieldName := runConfigType.Field(i).Name
		if config.isDefined([]string{"Runs", runName, fieldName}, meta) {
			discoveredParameters = append(discoveredParameters, fieldName)
			if xlist, some := fieldsXor[fieldName]; some {
				for x := range xlist {
					excludeFromLoadingDefaultOrOuter[xlist[x]] = struct{}{}
				}
			}
		}
	}

	globalConfigReflect := reflect.ValueOf(&config.RunParameters).Elem()
	globalConfigType := globalConfigReflect.Type()
	for i := range globalConfigReflect.NumField() {
		fieldName := globalConfigType.Field(i).Name
		if _, some := excludeFromLoadingDefaultOrOuter[fieldName]; !some && !slices.Contains(discoveredParameters, fieldName) && config.isDefined([]string{fieldName}, meta) {
			runConfigReflect.FieldByName(fieldName).Set(globalConfigReflect.Field(i))
			discoveredParameters = append(discoveredParameters, fieldName)
			for xAlternative := range fieldsXor[fieldName] {
				excludeFromLoadingDefaultOrOuter[fieldsXor[fieldName][xAlternative]] = struct{}{}
			}
		}
	}

	runConfig.convert(discoveredParameters, config.InputUnits, true)

	for fieldName := range defaultValues {
		if _, x := excludeFromLoadingDefaultOrOuter[fieldName]; !x && !slices.Contains(discoveredParameters, fieldName) {
			runConfigReflect.FieldByName(fieldName).Set(reflect.ValueOf(defaultValues[fieldName]))
			discoveredParameters = append(discoveredParameters, fieldName)
		}
	}

	runConfig.convert(discoveredParameters, config.meshUnits, false)

	var problems []string
	for _, required := range requiredFields {
		if !slices.Contains(discoveredParameters, required) {
			problems = append(problems, fmt.Sprintf("required parameter %s not found", required))
		}
	}
	for _, group := range fieldsOneOf {
		found := false
		for _, field := range group {
			found = found || slices.Contains(discoveredParameters, field)
		}
		if !found {
			problems = append(problems, fmt.Sprintf("one of %v is required", group))
		}
	}
	for _, field := range discoveredParameters {
		for _, requirement := range fieldsAnd[field] {
			if !slices.Contains(discoveredParameters, requirement) {
				problems = append(problems, fmt.Sprintf("for parameter %s requirement %s not found", field, requirement))
			}
		}
		if n, some := vectorLengths[field]; some {
			if l := runConfigReflect.FieldByName(field).Len(); l != n {
				problems = append(problems, fmt.Sprintf("%s needs %d components, got %d", field, n, l))
			}
		}
	}
	problems = append(problems, runConfig.checkValues()...)
	if len(problems) > 0 {
		return fmt.Errorf("%w: run %s: %s", ErrConfiguration, runName, strings.Join(problems, "; "))
	}
	return nil
}

func (p *RunParameters) checkValues() (problems []string) {
	positive := map[string]float64{"Dt": p.Dt, "Diameter": p.Diameter, "Density": p.Density}
	for _, name := range []string{"Dt", "Diameter", "Density"} {
		if !(positive[name] > 0) {
			problems = append(problems, fmt.Sprintf("%s must be positive", name))
		}
	}
	if p.Steps < 0 {
		problems = append(problems, "Steps must not be negative")
	}
	if p.Restitution < 0 || p.Restitution > 1 {
		problems = append(problems, "Restitution must lie in [0, 1]")
	}
	if p.FluidDensity < 0 || p.FluidViscosity < 0 {
		problems = append(problems, "fluid properties must not be negative")
	}
	if p.Dimensions != 2 && p.Dimensions != 3 {
		problems = append(problems, fmt.Sprintf("Dimensions must be 2 or 3, got %d", p.Dimensions))
	}
	if p.NParticles < 0 || p.MaxBounces < 1 || p.Ranks < 1 || p.SaveEvery < 1 {
		problems = append(problems, "NParticles, MaxBounces, Ranks and SaveEvery out of range")
	}
	if p.InitialVelocity != "zero" && p.InitialVelocity != "fluid" {
		problems = append(problems, fmt.Sprintf("unknown InitialVelocity %q", p.InitialVelocity))
	}
	if !slices.Contains([]string{"x", "y", "z", "roundrobin"}, p.Partition) {
		problems = append(problems, fmt.Sprintf("unknown Partition %q", p.Partition))
	}
	if !slices.IsSorted(p.SnapshotTimes) {
		problems = append(problems, "SnapshotTimes must be increasing")
	}
	for _, name := range p.Fields {
		if !auxFieldName.MatchString(name) {
			problems = append(problems, fmt.Sprintf("invalid field name %q", name))
		}
	}
	return
}
