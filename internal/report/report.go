package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/nhdewitt/purrtb/internal/reconcile"
	"github.com/nhdewitt/purrtb/internal/topology"
)

// BannerPadding is added to the label line's length to size the rule.
const BannerPadding = 16

const (
	bannerLabel   = "Core"
	bannerColumns = "\tdelta tb(apprx)\t\tdelta purr\t"
)

// Reporter renders the banner and per-round tables as plain text.
type Reporter struct {
	W io.Writer
}

func New(w io.Writer) *Reporter {
	return &Reporter{W: w}
}

// Membership renders a core's online threads as "[  0,  1]".
func Membership(topo topology.Topology, c topology.Core) string {
	return formatMembers(topo.OnlineMembers(c))
}

func formatMembers(members []topology.ThreadID) string {
	parts := make([]string, len(members))
	for i, t := range members {
		parts[i] = fmt.Sprintf("%3d", t)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func coreLabel(id int, members []topology.ThreadID) string {
	return fmt.Sprintf("core%02d %s", id, formatMembers(members))
}

// Banner returns the header rule and label line. The label is padded to
// line up with the first core's row. Both are empty when there are no cores.
func Banner(topo topology.Topology) (rule, label string) {
	if len(topo.Cores) == 0 {
		return "", ""
	}

	first := topo.Cores[0]
	width := len(coreLabel(first.ID, topo.OnlineMembers(first)))
	label = bannerLabel + strings.Repeat(" ", max(width-len(bannerLabel), 0)) + bannerColumns
	rule = strings.Repeat("=", len(label)+BannerPadding)
	return rule, label
}

// PrintBanner writes rule, label line, rule. Nothing is written without cores.
func (r *Reporter) PrintBanner(topo topology.Topology) error {
	rule, label := Banner(topo)
	if label == "" {
		return nil
	}

	_, err := fmt.Fprintf(r.W, "%s\n%s\n%s\n", rule, label, rule)
	return err
}

// PrintRound writes one line per core followed by a blank line. A round
// without cores writes nothing.
func (r *Reporter) PrintRound(deltas []reconcile.CoreDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	w := bufio.NewWriter(r.W)
	for _, d := range deltas {
		fmt.Fprintf(w, "%s\t%d\t\t%d\t\n", coreLabel(d.Core, d.Members), d.Ticks, d.Delta)
	}
	w.WriteString("\n")

	return w.Flush()
}
