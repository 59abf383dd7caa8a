package topology

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

var cpuinfoSamples = map[string]string{
	"power9_smt4": `processor	: 0
cpu		: POWER9 (architected), altivec supported
clock		: 2750.000000MHz
revision	: 2.2 (pvr 004e 1202)

processor	: 1
cpu		: POWER9 (architected), altivec supported
clock		: 2750.000000MHz
revision	: 2.2 (pvr 004e 1202)

processor	: 2
cpu		: POWER9 (architected), altivec supported
clock		: 2750.000000MHz
revision	: 2.2 (pvr 004e 1202)

processor	: 3
cpu		: POWER9 (architected), altivec supported
clock		: 2750.000000MHz
revision	: 2.2 (pvr 004e 1202)

timebase	: 512000000
platform	: pSeries
model		: IBM,9009-22A
machine		: CHRP IBM,9009-22A
`,
	"sparse": `processor	: 0
processor	: 4
processor	: 5
timebase	: 512000000
`,
	"none": `timebase	: 512000000
platform	: pSeries
`,
	"truncated": `processor	:
`,
	"bad_id": `processor	: x
`,
}

var coreMapSamples = map[string]string{
	"two_cores": `Core   0:    0*    1*
Core   1:    2*    3*
`,
	"ppc64_cpu_info": `Socket 0 (chip 0):
  Core   0:    0*    1*    2*    3*    4     5     6     7
  Core   1:    8     9    10    11    12    13    14    15
  Core   2:   16*   17*   18*   19*   20    21    22    23
`,
	"annotated": `Core   0:    0*    1*    2     3 'partially online'
`,
	"marker_without_core": `Summary: *  legend: * = online
Core   0:    0*    1*
`,
	"no_active": `Core   0:    0     1
Core   1:    2     3
`,
	"bad_member": `Core   0:    0*    a*
`,
	"no_colon": `Core 0    0*    1*
`,
}

func TestParseOnlineThreads(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
		want    []ThreadID
		wantErr bool
	}{
		{name: "power9 smt4", fixture: "power9_smt4", want: []ThreadID{0, 1, 2, 3}},
		{name: "sparse ids keep file order", fixture: "sparse", want: []ThreadID{0, 4, 5}},
		{name: "no processor lines", fixture: "none", want: nil},
		{name: "missing id", fixture: "truncated", wantErr: true},
		{name: "non-numeric id", fixture: "bad_id", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOnlineThreads(strings.NewReader(cpuinfoSamples[tt.fixture]))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOnlineThreads() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !slices.Equal(got, tt.want) {
				t.Errorf("ParseOnlineThreads() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseCoreMap(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
		want    []Core
		wantErr bool
	}{
		{
			name:    "two cores",
			fixture: "two_cores",
			want: []Core{
				{ID: 0, Threads: []ThreadID{0, 1}},
				{ID: 1, Threads: []ThreadID{2, 3}},
			},
		},
		{
			name:    "inactive core skipped and ids renumbered",
			fixture: "ppc64_cpu_info",
			want: []Core{
				{ID: 0, Threads: []ThreadID{0, 1, 2, 3, 4, 5, 6, 7}},
				{ID: 1, Threads: []ThreadID{16, 17, 18, 19, 20, 21, 22, 23}},
			},
		},
		{
			name:    "annotation dropped",
			fixture: "annotated",
			want:    []Core{{ID: 0, Threads: []ThreadID{0, 1, 2, 3}}},
		},
		{
			name:    "marked line without core token ignored",
			fixture: "marker_without_core",
			want:    []Core{{ID: 0, Threads: []ThreadID{0, 1}}},
		},
		{name: "no active cores", fixture: "no_active", want: nil},
		{name: "non-numeric member", fixture: "bad_member", wantErr: true},
		{name: "missing colon", fixture: "no_colon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCoreMap(strings.NewReader(coreMapSamples[tt.fixture]))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCoreMap() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseCoreMap() returned %d cores, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i].ID || !slices.Equal(got[i].Threads, tt.want[i].Threads) {
					t.Errorf("core[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseCoreMap_ActiveCount(t *testing.T) {
	for name, s := range coreMapSamples {
		if name == "bad_member" || name == "no_colon" {
			continue
		}

		want := 0
		for _, line := range strings.Split(s, "\n") {
			if strings.Contains(line, "*") && strings.Contains(line, "Core") {
				want++
			}
		}

		got, err := ParseCoreMap(strings.NewReader(s))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != want {
			t.Errorf("%s: got %d cores, want %d", name, len(got), want)
		}
	}
}

func TestTopology_OnlineMembers(t *testing.T) {
	topo := New([]ThreadID{0, 1, 16}, []Core{
		{ID: 0, Threads: []ThreadID{0, 1, 2, 3}},
		{ID: 1, Threads: []ThreadID{8, 9}},
		{ID: 2, Threads: []ThreadID{17, 16}},
	})

	tests := []struct {
		core int
		want []ThreadID
	}{
		{core: 0, want: []ThreadID{0, 1}},
		{core: 1, want: []ThreadID{}},
		{core: 2, want: []ThreadID{16}},
	}

	for _, tt := range tests {
		got := topo.OnlineMembers(topo.Cores[tt.core])
		if !slices.Equal(got, tt.want) {
			t.Errorf("OnlineMembers(core %d) = %v, want %v", tt.core, got, tt.want)
		}
	}

	if topo.IsOnline(2) {
		t.Error("IsOnline(2) = true, want false")
	}
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	cpuinfo := strings.NewReader(cpuinfoSamples["power9_smt4"])

	topo, err := Discover(ctx, cpuinfo, StaticSource(coreMapSamples["two_cores"]))
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if !slices.Equal(topo.Online, []ThreadID{0, 1, 2, 3}) {
		t.Errorf("Online = %v", topo.Online)
	}
	if len(topo.Cores) != 2 {
		t.Fatalf("got %d cores, want 2", len(topo.Cores))
	}
}

type failingSource struct{ err error }

func (f failingSource) CoreMap(context.Context) (io.Reader, error) { return nil, f.err }

func TestDiscover_Errors(t *testing.T) {
	ctx := context.Background()
	toolErr := errors.New("exit status 1")

	tests := []struct {
		name    string
		cpuinfo string
		src     Source
	}{
		{name: "tool failure", cpuinfo: cpuinfoSamples["power9_smt4"], src: failingSource{toolErr}},
		{name: "bad cpuinfo", cpuinfo: cpuinfoSamples["bad_id"], src: StaticSource(coreMapSamples["two_cores"])},
		{name: "bad core map", cpuinfo: cpuinfoSamples["power9_smt4"], src: StaticSource(coreMapSamples["bad_member"])},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Discover(ctx, strings.NewReader(tt.cpuinfo), tt.src)
			var topoErr *Error
			if !errors.As(err, &topoErr) {
				t.Fatalf("Discover() error = %v, want *topology.Error", err)
			}
		})
	}

	_, err := Discover(ctx, strings.NewReader(cpuinfoSamples["power9_smt4"]), failingSource{toolErr})
	if !errors.Is(err, toolErr) {
		t.Errorf("Discover() error = %v, want wrapped %v", err, toolErr)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.txt")
	if err := os.WriteFile(path, []byte(coreMapSamples["two_cores"]), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := FileSource(path).CoreMap(context.Background())
	if err != nil {
		t.Fatalf("CoreMap() error = %v", err)
	}
	cores, err := ParseCoreMap(r)
	if err != nil || len(cores) != 2 {
		t.Errorf("ParseCoreMap() = %v, %v", cores, err)
	}

	if _, err := FileSource(filepath.Join(t.TempDir(), "missing")).CoreMap(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCommandSource(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	ctx := context.Background()

	ok := CommandSource{Path: "sh", Args: []string{"-c", "printf 'Core   0:    0*    1*\\n'"}}
	r, err := ok.CoreMap(ctx)
	if err != nil {
		t.Fatalf("CoreMap() error = %v", err)
	}
	cores, err := ParseCoreMap(r)
	if err != nil || len(cores) != 1 {
		t.Errorf("ParseCoreMap() = %v, %v", cores, err)
	}

	failing := CommandSource{Path: "sh", Args: []string{"-c", "echo no such device >&2; exit 3"}}
	_, err = failing.CoreMap(ctx)
	if err == nil || !strings.Contains(err.Error(), "no such device") {
		t.Errorf("CoreMap() error = %v, want stderr in message", err)
	}

	missing := CommandSource{Path: filepath.Join(t.TempDir(), "ppc64_cpu")}
	if _, err := missing.CoreMap(ctx); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestOpenCPUInfo_Missing(t *testing.T) {
	_, err := OpenCPUInfo(filepath.Join(t.TempDir(), "cpuinfo"))
	var topoErr *Error
	if !errors.As(err, &topoErr) {
		t.Fatalf("OpenCPUInfo() error = %v, want *topology.Error", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("OpenCPUInfo() error = %v, want ErrNotExist", err)
	}
}
