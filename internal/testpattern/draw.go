package testpattern

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/fogleman/gg"
	"github.com/gokrazy/gokrazy"
	"github.com/gokrazy/stat/statexp"
	"github.com/golang/freetype/truetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

var colorNameToRGBA = map[string]color.NRGBA{
	"darkgray": {R: 0x55, G: 0x57, B: 0x53},
	"red":      {R: 0xEF, G: 0x29, B: 0x29},
	"green":    {R: 0x8A, G: 0xE2, B: 0x34},
	"yellow":   {R: 0xFC, G: 0xE9, B: 0x4F},
	"blue":     {R: 0x72, G: 0x9F, B: 0xCF},
	"magenta":  {R: 0xEE, G: 0x38, B: 0xDA},
	"cyan":     {R: 0x34, G: 0xE2, B: 0xE2},
	"white":    {R: 0xEE, G: 0xEE, B: 0xEC},
}

var bgcolor = color.RGBA{R: 50, G: 50, B: 50, A: 255}

const lineSpacing = 1.5

func uptime() (string, error) {
	file, err := os.Open("/proc/uptime")
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), " ")
		dur, err := time.ParseDuration(parts[0] + "s")
		if err != nil {
			return "", err
		}
		return dur.Round(time.Second).String(), nil
	}
	return "", fmt.Errorf("BUG: parse /proc/uptime")
}

// scaleImage fits bounds into maxW×maxH, keeping the aspect ratio.
func scaleImage(bounds image.Rectangle, maxW, maxH int) image.Rectangle {
	imgW := bounds.Dx()
	imgH := bounds.Dy()
	ratio := float64(maxW) / float64(imgW)
	if r := float64(maxH) / float64(imgH); r < ratio {
		ratio = r
	}
	return image.Rect(0, 0, int(ratio*float64(imgW)), int(ratio*float64(imgH)))
}

func setBackground(g *gg.Context) {
	r, gr, b, a := bgcolor.RGBA()
	g.SetRGBA(
		float64(r)/0xffff,
		float64(gr)/0xffff,
		float64(b)/0xffff,
		float64(a)/0xffff)
	g.Clear()
}

// drawer renders the test pattern: a large frame counter, a bar which
// moves by a fixed step every frame, the host details and the last rows of
// the system statistics. Torn, repeated or out of order frames are easy to
// spot on screen.
type drawer struct {
	w, h   int
	buffer *image.RGBA

	counter *gg.Context
	info    *gg.Context
	stat    *gg.Context

	hostname string
	files    map[string]*os.File
	statRow  func(contents map[string][]byte) [][]string
	last     [][][]string
}

func newDrawer(ctx context.Context, w, h int) (*drawer, error) {
	d := &drawer{
		w:       w,
		h:       h,
		buffer:  image.NewRGBA(image.Rect(0, 0, w, h)),
		counter: gg.NewContext(160, 48),
		info:    gg.NewContext(w, h/4),
		stat:    gg.NewContext(w, h/4),
		files:   make(map[string]*os.File),
		last:    make([][][]string, 5),
	}

	size := float64(16)
	if scaleFactor := math.Floor(float64(w) / 1024); scaleFactor > 1 {
		size *= scaleFactor
	}
	face := func(ttf []byte, size float64) (font.Face, error) {
		f, err := truetype.Parse(ttf)
		if err != nil {
			return nil, err
		}
		return truetype.NewFace(f, &truetype.Options{Size: size}), nil
	}
	regular, err := face(goregular.TTF, size)
	if err != nil {
		return nil, err
	}
	d.info.SetFontFace(regular)
	mono, err := face(gomono.TTF, size)
	if err != nil {
		return nil, err
	}
	d.stat.SetFontFace(mono)
	// Drawn small and scaled up, see draw.
	italic, err := face(goitalic.TTF, 32)
	if err != nil {
		return nil, err
	}
	d.counter.SetFontFace(italic)

	if d.hostname, err = os.Hostname(); err != nil {
		logger.Warnf(ctx, "hostname: %v", err)
	}

	modules := statexp.DefaultModules()
	for _, mod := range modules {
		// When a stats module implements the FileContents() interface, we
		// ensure all returned file contents are read and passed to
		// ProcessAndFormat.
		fc, ok := mod.(interface{ FileContents() []string })
		if !ok {
			continue
		}
		for _, f := range fc.FileContents() {
			if _, ok := d.files[f]; ok {
				continue // already requested
			}
			fl, err := os.Open(f)
			if err != nil {
				d.Close()
				return nil, err
			}
			d.files[f] = fl
		}
	}
	d.statRow = func(contents map[string][]byte) [][]string {
		var row [][]string
		for _, mod := range modules {
			var modcols []string
			for _, col := range mod.ProcessAndFormat(contents) {
				modcols = append(modcols, col.RenderCustom(func(color, text string) string {
					return "$" + color + "$" + text
				}))
			}
			row = append(row, modcols)
		}
		return row
	}
	return d, nil
}

func (d *drawer) Close() error {
	for _, fl := range d.files {
		fl.Close()
	}
	return nil
}

// draw renders frame seq and returns the buffer, which stays valid until
// the next call.
func (d *drawer) draw(seq uint64, now time.Time) (*image.RGBA, error) {
	bounds := d.buffer.Bounds()
	draw.Draw(d.buffer, bounds, &image.Uniform{bgcolor}, image.Point{}, draw.Src)

	// Frame counter in the top half.
	setBackground(d.counter)
	d.counter.SetRGB(1, 1, 1)
	d.counter.DrawStringAnchored(fmt.Sprintf("%06d", seq), 80, 24, 0.5, 0.5)
	counterRect := scaleImage(d.counter.Image().Bounds(), d.w, d.h/2)
	counterRect = counterRect.Add(image.Point{(d.w - counterRect.Dx()) / 2, 0})
	xdraw.ApproxBiLinear.Scale(d.buffer, counterRect, d.counter.Image(), d.counter.Image().Bounds(), draw.Src, nil)

	// Moving bar across the full height.
	const barSteps = 64
	barW := max(d.w/barSteps, 1)
	barX := int(seq%barSteps) * barW
	barColor := color.RGBA{R: 0xEF, G: 0x29, B: 0x29, A: 0xff}
	if seq%2 == 1 {
		barColor = color.RGBA{R: 0x34, G: 0xE2, B: 0xE2, A: 0xff}
	}
	draw.Draw(d.buffer, image.Rect(barX, 0, barX+barW, d.h), &image.Uniform{barColor}, image.Point{}, draw.Src)

	setBackground(d.info)
	d.info.SetRGB(1, 1, 1)
	lines := []string{
		"host “" + d.hostname + "” (" + gokrazy.Model() + ")",
		"time: " + now.Format(time.RFC3339Nano),
	}
	if up, err := uptime(); err == nil {
		lines[len(lines)-1] += ", up for " + up
	}
	texty := d.info.FontHeight() * 2
	for _, line := range lines {
		d.info.DrawString(line, 50, texty)
		texty += d.info.FontHeight() * lineSpacing
	}
	draw.Draw(d.buffer, image.Rect(0, d.h/2, d.w, d.h/2+d.h/4), d.info.Image(), image.Point{}, draw.Over)

	if err := d.drawStat(); err != nil {
		return nil, err
	}
	draw.Draw(d.buffer, image.Rect(0, d.h-d.h/4, d.w, d.h), d.stat.Image(), image.Point{}, draw.Over)

	return d.buffer, nil
}

func (d *drawer) drawStat() error {
	contents := make(map[string][]byte)
	for path, fl := range d.files {
		if _, err := fl.Seek(0, io.SeekStart); err != nil {
			return err
		}
		b, err := io.ReadAll(fl)
		if err != nil {
			return err
		}
		contents[path] = b
	}

	copy(d.last, d.last[1:])
	d.last[len(d.last)-1] = d.statRow(contents)

	setBackground(d.stat)
	em, _ := d.stat.MeasureString("m")
	staty := d.stat.FontHeight() * 2
	for _, row := range d.last {
		statx := float64(50)
		for _, modcols := range row {
			for _, colored := range modcols {
				statx += em
				for idx, field := range strings.Split(strings.TrimPrefix(colored, "$"), "$") {
					if idx%2 == 0 {
						col := colorNameToRGBA[field]
						d.stat.SetRGB255(int(col.R), int(col.G), int(col.B))
					} else {
						d.stat.DrawString(field, statx, staty)
						statx += float64(len(field)) * em
					}
				}
			}
			statx += 3 * em
		}
		staty += d.stat.FontHeight() * lineSpacing
	}
	return nil
}
