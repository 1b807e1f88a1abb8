package detector

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
)

// PhoneLabel is the only class the proctoring policy acts on.
const PhoneLabel = "cell phone"

// COCOLabels is the 80-class vocabulary YOLOv8 checkpoints are exported with, in output order.
var COCOLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
}

// IsPhone reports whether label names the phone class, ignoring case.
func IsPhone(label string) bool {
	return strings.EqualFold(label, PhoneLabel)
}

// LoadLabels reads a newline-delimited vocabulary. An empty path yields COCOLabels.
// The vocabulary must be able to express the phone class.
func LoadLabels(path string) ([]string, error) {
	labels := COCOLabels
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open labels: %w", err)
		}
		defer f.Close()

		labels = nil
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if l := strings.TrimSpace(sc.Text()); l != "" {
				labels = append(labels, l)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read labels: %w", err)
		}
	}

	if !lo.ContainsBy(labels, IsPhone) {
		return nil, fmt.Errorf("label vocabulary of %d classes has no %q class", len(labels), PhoneLabel)
	}
	return labels, nil
}
