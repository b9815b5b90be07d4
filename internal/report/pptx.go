package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strings"

	"obralog/internal/format"
	"obralog/internal/imaging"
	"obralog/pkg/types"
)

// Slide geometry is in inches on a 10 x 5.625 (16:9) page.
const (
	emuPerInch  = 914400
	slideWidth  = 10.0
	slideHeight = 5.625

	leftX          = 0.5
	leftWidth      = 4.5
	rightX         = 5.5
	photoWidth     = 3.33
	photoHeight    = 4.78
	thumbY         = 4.2
	thumbHeight    = 1.3
	thumbGap       = 0.1
	maxSlidePhotos = 3
)

type textRun struct {
	text  string
	bold  bool
	size  float64
	color string
}

type paragraph struct {
	runs  []textRun
	align string
}

type shape interface {
	xml(id int) string
}

type textBox struct {
	x, y, w, h float64
	paras      []paragraph
}

type picture struct {
	x, y, w, h float64
	relID      string
	name       string
}

type slide struct {
	shapes []shape
	// media holds the package paths referenced by the slide, in rel order.
	media []string
}

type media struct {
	path        string
	ext         string
	contentType string
	data        []byte
}

type deck struct {
	in     Input
	slides []*slide
	media  []*media
	byURL  map[string]*media
}

// SlideDeck builds a title slide, a statistics slide and one slide per
// problem. Photos that cannot be embedded become a "[Foto: name]" line.
func SlideDeck(in Input) ([]byte, error) {
	d := &deck{in: in.snapshot(), byURL: make(map[string]*media)}

	d.titleSlide()
	d.statsSlide()

	if len(d.in.Problems) == 0 {
		d.emptySlide()
	}

	for _, p := range d.in.Problems {
		d.problemSlide(p)
	}

	return d.write()
}

func (d *deck) titleSlide() {
	s := &slide{}
	s.shapes = append(s.shapes,
		&textBox{x: 1, y: 2, w: 8, h: 1.5, paras: []paragraph{{
			align: "ctr",
			runs:  []textRun{{text: Title, bold: true, size: 32, color: colorText}},
		}}},
		&textBox{x: 1, y: 4, w: 8, h: 1, paras: []paragraph{
			{align: "ctr", runs: []textRun{{text: Subtitle, size: 16, color: colorMuted}}},
			{align: "ctr", runs: []textRun{{text: "Data de geração: " + format.Date(d.in.GeneratedAt), size: 16, color: colorMuted}}},
		}},
	)
	d.slides = append(d.slides, s)
}

func (d *deck) statsSlide() {
	total, pending, resolved := d.in.stats()

	s := &slide{}
	s.shapes = append(s.shapes,
		&textBox{x: 1, y: 0.5, w: 8, h: 1, paras: []paragraph{{
			runs: []textRun{{text: "Estatísticas Gerais", bold: true, size: 24, color: colorText}},
		}}},
		&textBox{x: 1, y: 2, w: 8, h: 3, paras: []paragraph{
			{runs: []textRun{{text: fmt.Sprintf("Total de Problemas: %d", total), size: 18, color: colorText}}},
			{runs: []textRun{{text: fmt.Sprintf("Não Resolvidos: %d", pending), size: 18, color: colorPending}}},
			{runs: []textRun{{text: fmt.Sprintf("Resolvidos: %d", resolved), size: 18, color: colorResolved}}},
		}},
	)
	d.slides = append(d.slides, s)
}

func (d *deck) emptySlide() {
	s := &slide{}
	s.shapes = append(s.shapes, &textBox{x: 1, y: 2.3, w: 8, h: 1, paras: []paragraph{{
		align: "ctr",
		runs:  []textRun{{text: EmptyText, size: 20, color: colorMuted}},
	}}})
	d.slides = append(d.slides, s)
}

func labelled(label, value string, size float64, color string) []paragraph {
	return []paragraph{{runs: []textRun{
		{text: label, bold: true, size: size, color: color},
		{text: value, size: size, color: color},
	}}}
}

func (d *deck) problemSlide(p *types.Problem) {
	s := &slide{}
	color := statusColor(p)

	s.shapes = append(s.shapes, &textBox{x: leftX, y: 0.2, w: 9, h: 0.8, paras: []paragraph{{
		runs: []textRun{{text: format.ProblemTitle(p), bold: true, size: 20, color: color}},
	}}})

	y := 1.0
	line := func(label, value string, size, h float64, color string) {
		s.shapes = append(s.shapes, &textBox{x: leftX, y: y, w: leftWidth, h: h, paras: labelled(label, value, size, color)})
	}

	line("Tipo: ", format.RenderTagSet(p.Tags), 12, 0.3, "")
	y += 0.35
	line("Local: ", orPlaceholder(p.Location), 12, 0.3, "")
	y += 0.35
	line("Severidade: ", format.SeverityLabel(p.Severity), 12, 0.3, "")
	y += 0.35
	line("Status: ", format.StatusLabel(p.Status), 12, 0.3, color)

	if coords := format.Coordinates(p.LatitudeGMS, p.LongitudeGMS); coords != "" {
		y += 0.35
		line("Coordenadas: ", coords, 11, 0.3, "22C55E")

		if dec := format.DecimalCoordinates(p.LatitudeDecimal, p.LongitudeDecimal); dec != "" {
			y += 0.25
			line("Decimal: ", dec, 10, 0.25, colorMuted)
		}
	}

	y += 0.35
	s.shapes = append(s.shapes, heading(y, "Descrição:"))
	y += 0.25
	s.shapes = append(s.shapes, body(y, 1.0, orPlaceholder(p.Description)))

	y += 1.05
	if rec := strings.TrimSpace(format.OrDefault(p.Recommendations, "")); rec != "" {
		s.shapes = append(s.shapes, heading(y, "Recomendações:"))
		y += 0.25
		s.shapes = append(s.shapes, body(y, 0.8, rec))
	}

	d.placePhotos(s, orderedPhotos(p))
	d.slides = append(d.slides, s)
}

func heading(y float64, text string) *textBox {
	return &textBox{x: leftX, y: y, w: leftWidth, h: 0.25, paras: []paragraph{{
		runs: []textRun{{text: text, bold: true, size: 14}},
	}}}
}

func body(y, h float64, text string) *textBox {
	var paras []paragraph
	for _, l := range strings.Split(text, "\n") {
		paras = append(paras, paragraph{runs: []textRun{{text: l, size: 11}}})
	}
	return &textBox{x: leftX, y: y, w: leftWidth, h: h, paras: paras}
}

// placePhotos puts the first photo large in the right column and the next
// two as thumbnails beneath it.
func (d *deck) placePhotos(s *slide, list []*types.Photo) {
	if len(list) == 0 {
		return
	}
	if len(list) > maxSlidePhotos {
		list = list[:maxSlidePhotos]
	}

	mainH := photoHeight
	if len(list) > 1 {
		mainH = thumbY - 1.0 - thumbGap
	}
	d.placePhoto(s, list[0], rightX, 1.0, photoWidth, mainH)

	thumbW := (photoWidth - 0.2) / 2
	for i, photo := range list[1:] {
		x := rightX + float64(i)*(thumbW+thumbGap)
		d.placePhoto(s, photo, x, thumbY, thumbW, thumbHeight)
	}
}

func (d *deck) placePhoto(s *slide, photo *types.Photo, x, y, w, h float64) {
	m := d.embed(photo.PhotoURL)
	if m == nil {
		s.shapes = append(s.shapes, &textBox{x: x, y: y + h/2 - 0.15, w: w, h: 0.3, paras: []paragraph{{
			align: "ctr",
			runs:  []textRun{{text: fmt.Sprintf("[Foto: %s]", photo.Filename), size: 10, color: "999999"}},
		}}})
		return
	}

	fetched := d.in.Photos[photo.PhotoURL]
	cw, ch, ox, oy := imaging.Contain(fetched.Width, fetched.Height, w, h)

	s.media = append(s.media, m.path)
	s.shapes = append(s.shapes, &picture{
		x:     x + ox,
		y:     y + oy,
		w:     cw,
		h:     ch,
		relID: fmt.Sprintf("rId%d", len(s.media)+1),
		name:  photo.Filename,
	})
}

// embed returns the package part for the photo, converting formats the
// slide renderer does not accept to JPEG. nil means the photo is unusable.
func (d *deck) embed(url string) *media {
	if m, ok := d.byURL[url]; ok {
		return m
	}

	fetched, ok := d.in.photo(url)
	if !ok {
		return nil
	}

	data, ext, ct := fetched.Data, "", fetched.ContentType
	switch ct {
	case "image/jpeg":
		ext = "jpeg"
	case "image/png":
		ext = "png"
	case "image/gif":
		ext = "gif"
	default:
		converted, err := imaging.ToJPEG(fetched.Data, 0.85)
		if err != nil {
			return nil
		}
		data, ext, ct = converted, "jpeg", "image/jpeg"
	}

	m := &media{
		path:        fmt.Sprintf("ppt/media/image%d.%s", len(d.media)+1, ext),
		ext:         ext,
		contentType: ct,
		data:        data,
	}
	d.media = append(d.media, m)
	d.byURL[url] = m
	return m
}

func emu(inches float64) int64 {
	return int64(math.Round(inches * emuPerInch))
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func xfrm(x, y, w, h float64) string {
	return fmt.Sprintf(`<a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`, emu(x), emu(y), emu(w), emu(h))
}

func (t *textBox) xml(id int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Text %d"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, id)
	b.WriteString(`<p:spPr>` + xfrm(t.x, t.y, t.w, t.h) + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`)
	b.WriteString(`<p:txBody><a:bodyPr wrap="square" lIns="0" tIns="0" rIns="0" bIns="0" rtlCol="0" anchor="t"><a:noAutofit/></a:bodyPr><a:lstStyle/>`)

	for _, para := range t.paras {
		b.WriteString(`<a:p>`)
		if para.align != "" {
			fmt.Fprintf(&b, `<a:pPr algn="%s"/>`, para.align)
		}
		for _, r := range para.runs {
			fmt.Fprintf(&b, `<a:r><a:rPr lang="pt-BR" sz="%d"`, int(r.size*100))
			if r.bold {
				b.WriteString(` b="1"`)
			}
			b.WriteString(` dirty="0">`)
			if r.color != "" {
				fmt.Fprintf(&b, `<a:solidFill><a:srgbClr val="%s"/></a:solidFill>`, r.color)
			}
			b.WriteString(`</a:rPr><a:t>` + escape(r.text) + `</a:t></a:r>`)
		}
		b.WriteString(`</a:p>`)
	}

	b.WriteString(`</p:txBody></p:sp>`)
	return b.String()
}

func (p *picture) xml(id int) string {
	return fmt.Sprintf(`<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Picture %d" descr="%s"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`+
		`<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`+
		`<p:spPr>%s<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`,
		id, id, escape(p.name), p.relID, xfrm(p.x, p.y, p.w, p.h))
}

const (
	nsA = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsR = `xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	nsP = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`

	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

	relTypeBase = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"

	emptyTree = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
		`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`
)

type relationship struct {
	id, relType, target string
}

func relsXML(rels []relationship) string {
	var b strings.Builder
	b.WriteString(xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for _, r := range rels {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, r.relType, r.target)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func (s *slide) xml() string {
	var b strings.Builder
	b.WriteString(xmlHeader + `<p:sld ` + nsA + ` ` + nsR + ` ` + nsP + `><p:cSld><p:spTree>` + emptyTree)
	for i, sh := range s.shapes {
		b.WriteString(sh.xml(i + 2))
	}
	b.WriteString(`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`)
	return b.String()
}

func (s *slide) rels() string {
	rels := []relationship{{"rId1", relTypeBase + "slideLayout", "../slideLayouts/slideLayout1.xml"}}
	for i, path := range s.media {
		rels = append(rels, relationship{fmt.Sprintf("rId%d", i+2), relTypeBase + "image", "../media/" + path[len("ppt/media/"):]})
	}
	return relsXML(rels)
}

func (d *deck) contentTypes() string {
	var b strings.Builder
	b.WriteString(xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Default Extension="jpeg" ContentType="image/jpeg"/>`)
	b.WriteString(`<Default Extension="png" ContentType="image/png"/>`)
	b.WriteString(`<Default Extension="gif" ContentType="image/gif"/>`)

	override := func(part, ct string) {
		fmt.Fprintf(&b, `<Override PartName="/%s" ContentType="%s"/>`, part, ct)
	}
	const pml = "application/vnd.openxmlformats-officedocument.presentationml."
	override("ppt/presentation.xml", pml+"presentation.main+xml")
	override("ppt/slideMasters/slideMaster1.xml", pml+"slideMaster+xml")
	override("ppt/slideLayouts/slideLayout1.xml", pml+"slideLayout+xml")
	override("ppt/theme/theme1.xml", "application/vnd.openxmlformats-officedocument.theme+xml")
	override("ppt/presProps.xml", pml+"presProps+xml")
	override("ppt/viewProps.xml", pml+"viewProps+xml")
	override("ppt/tableStyles.xml", pml+"tableStyles+xml")
	for i := range d.slides {
		override(fmt.Sprintf("ppt/slides/slide%d.xml", i+1), pml+"slide+xml")
	}
	override("docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml")
	override("docProps/app.xml", "application/vnd.openxmlformats-officedocument.extended-properties+xml")

	b.WriteString(`</Types>`)
	return b.String()
}

func (d *deck) presentation() (string, string) {
	var b strings.Builder
	b.WriteString(xmlHeader + `<p:presentation ` + nsA + ` ` + nsR + ` ` + nsP + ` saveSubsetFonts="1">`)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst><p:sldIdLst>`)

	rels := []relationship{{"rId1", relTypeBase + "slideMaster", "slideMasters/slideMaster1.xml"}}
	for i := range d.slides {
		rid := fmt.Sprintf("rId%d", i+2)
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="%s"/>`, 256+i, rid)
		rels = append(rels, relationship{rid, relTypeBase + "slide", fmt.Sprintf("slides/slide%d.xml", i+1)})
	}

	n := len(d.slides) + 2
	rels = append(rels,
		relationship{fmt.Sprintf("rId%d", n), relTypeBase + "theme", "theme/theme1.xml"},
		relationship{fmt.Sprintf("rId%d", n+1), relTypeBase + "presProps", "presProps.xml"},
		relationship{fmt.Sprintf("rId%d", n+2), relTypeBase + "viewProps", "viewProps.xml"},
		relationship{fmt.Sprintf("rId%d", n+3), relTypeBase + "tableStyles", "tableStyles.xml"},
	)

	fmt.Fprintf(&b, `</p:sldIdLst><p:sldSz cx="%d" cy="%d"/><p:notesSz cx="6858000" cy="9144000"/>`, emu(slideWidth), emu(slideHeight))
	b.WriteString(`<p:defaultTextStyle><a:lvl1pPr><a:defRPr lang="pt-BR"/></a:lvl1pPr></p:defaultTextStyle></p:presentation>`)

	return b.String(), relsXML(rels)
}

func (d *deck) coreProps() string {
	ts := d.in.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z")
	return xmlHeader + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + escape(Title) + `</dc:title><dc:creator>obralog</dc:creator>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:modified></cp:coreProperties>`
}

func (d *deck) appProps() string {
	return xmlHeader + `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		`<Application>obralog</Application>` + fmt.Sprintf("<Slides>%d</Slides>", len(d.slides)) + `</Properties>`
}

func (d *deck) write() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	put := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		_, err = w.Write(data)
		return err
	}

	presentation, presentationRels := d.presentation()

	parts := []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", d.contentTypes()},
		{"_rels/.rels", relsXML([]relationship{
			{"rId1", relTypeBase + "officeDocument", "ppt/presentation.xml"},
			{"rId2", "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties", "docProps/core.xml"},
			{"rId3", relTypeBase + "extended-properties", "docProps/app.xml"},
		})},
		{"docProps/core.xml", d.coreProps()},
		{"docProps/app.xml", d.appProps()},
		{"ppt/presentation.xml", presentation},
		{"ppt/_rels/presentation.xml.rels", presentationRels},
		{"ppt/presProps.xml", xmlHeader + `<p:presentationPr ` + nsA + ` ` + nsR + ` ` + nsP + `/>`},
		{"ppt/viewProps.xml", xmlHeader + `<p:viewPr ` + nsA + ` ` + nsR + ` ` + nsP + `/>`},
		{"ppt/tableStyles.xml", xmlHeader + `<a:tblStyleLst ` + nsA + ` def="{5C22544A-7EE6-4342-B048-85BDC9FD1C3A}"/>`},
		{"ppt/slideMasters/slideMaster1.xml", slideMasterXML},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", relsXML([]relationship{
			{"rId1", relTypeBase + "slideLayout", "../slideLayouts/slideLayout1.xml"},
			{"rId2", relTypeBase + "theme", "../theme/theme1.xml"},
		})},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayoutXML},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", relsXML([]relationship{
			{"rId1", relTypeBase + "slideMaster", "../slideMasters/slideMaster1.xml"},
		})},
		{"ppt/theme/theme1.xml", themeXML},
	}

	for _, part := range parts {
		if err := put(part.name, []byte(part.data)); err != nil {
			return nil, err
		}
	}

	for i, s := range d.slides {
		if err := put(fmt.Sprintf("ppt/slides/slide%d.xml", i+1), []byte(s.xml())); err != nil {
			return nil, err
		}
		if err := put(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), []byte(s.rels())); err != nil {
			return nil, err
		}
	}

	for _, m := range d.media {
		if err := put(m.path, m.data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish pptx archive: %w", err)
	}

	return buf.Bytes(), nil
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return format.Unspecified
	}
	return s
}
