package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// areaChart renders a multi-line area chart with Y-axis labels and sub-cell
// resolution using fractional block characters.
//
//	System CPU %                                        now: 42.0
//	100│
//	 80│          ████
//	 60│        ████████       ██
//	 40│    ████████████████████████
//	 20│████████████████████████████████
//	  0│████████████████████████████████████████
//	   └────────────────────────────────────────
//	   -30s                                   now
func areaChart(data []float64, label string, width, height int, minVal, maxVal float64,
	colorFn func(float64) lipgloss.Style, span string) string {

	if height < 2 {
		height = 2
	}
	if maxVal <= minVal {
		maxVal = minVal + 1
	}

	axisW := 4 // "100│"
	chartW := width - axisW - 1
	if chartW < 10 {
		chartW = 10
	}
	resampled := resampleData(data, chartW)
	subBlocks := []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	var sb strings.Builder
	last := float64(0)
	if len(resampled) > 0 {
		last = resampled[len(resampled)-1]
	}
	sb.WriteString(titleStyle.Render(label))
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  now: %.1f", last)))
	sb.WriteString("\n")

	rangeVal := maxVal - minVal
	for row := height - 1; row >= 0; row-- {
		yVal := minVal + (float64(row+1)/float64(height))*rangeVal
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%3.0f│", yVal)))

		for _, val := range resampled {
			normalized := (val - minVal) / rangeVal * float64(height)
			cellBottom := float64(row)

			var ch rune
			switch {
			case normalized >= cellBottom+1:
				ch = '█'
			case normalized <= cellBottom:
				ch = ' '
			default:
				idx := int((normalized - cellBottom) * 8)
				idx = max(0, min(idx, len(subBlocks)-1))
				ch = subBlocks[idx]
			}
			if ch == ' ' {
				sb.WriteRune(' ')
			} else {
				sb.WriteString(colorFn(val).Render(string(ch)))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(dimStyle.Render("   └" + strings.Repeat("─", len(resampled))))
	if span != "" && len(resampled) > 0 {
		left, right := "-"+span, "now"
		gap := len(resampled) - len(left) - len(right) + 1
		if gap < 1 {
			gap = 1
		}
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render("    " + left + strings.Repeat(" ", gap) + right))
	}
	return sb.String()
}

// resampleData averages data down to targetWidth columns. Shorter data is
// returned as is.
func resampleData(data []float64, targetWidth int) []float64 {
	if len(data) <= targetWidth || targetWidth <= 0 {
		return data
	}
	result := make([]float64, targetWidth)
	for i := 0; i < targetWidth; i++ {
		srcStart := i * len(data) / targetWidth
		srcEnd := (i + 1) * len(data) / targetWidth
		if srcEnd <= srcStart {
			srcEnd = srcStart + 1
		}
		sum := float64(0)
		for j := srcStart; j < srcEnd; j++ {
			sum += data[j]
		}
		result[i] = sum / float64(srcEnd-srcStart)
	}
	return result
}

// autoScale computes a "nice" Y-axis max with some headroom over the data.
func autoScale(data []float64, hardMax float64) float64 {
	maxVal := float64(0)
	for _, v := range data {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 0 {
		return 5
	}
	target := maxVal * 1.3
	for _, n := range []float64{1, 2, 5, 10, 15, 20, 25, 30, 40, 50, 75, 100} {
		if target <= n {
			return n
		}
	}
	return hardMax
}

// sparkline renders data as one line of block characters in style.
// Data wider than width keeps its most recent samples.
func sparkline(data []float64, width int, maxVal float64, style lipgloss.Style) string {
	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	if maxVal <= 0 {
		maxVal = 1
	}
	if width > 0 && len(data) > width {
		data = data[len(data)-width:]
	}
	var sb strings.Builder
	for _, v := range data {
		ratio := v / maxVal
		ratio = max(0, min(ratio, 1))
		sb.WriteRune(blocks[int(ratio*float64(len(blocks)-1))])
	}
	return style.Render(sb.String())
}

// bar renders a percentage bar of given width.
func bar(pct float64, width int) string {
	if width < 1 {
		width = 10
	}
	pct = max(0, min(pct, 100))
	filled := min(int(pct/100*float64(width)), width)
	return pctStyle(pct).Render(strings.Repeat("█", filled) + strings.Repeat("░", width-filled))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
