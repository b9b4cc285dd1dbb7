package media

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse builds a pipeline from a textual description in the familiar
// launch syntax:
//
//	camsrc sensor-id=0 ! video/x-raw,width=1920,height=1080,framerate=60/1
//	  ! identity name=camsrc_ident ! jpegenc name=encoder quality=85
//	  ! rtppay mtu=1300 pt=26 ! udpsink host=10.0.0.1 port=8554
//
// Stages are separated by "!". A stage that is a bare "<name>." links the
// current chain tail into the element of that name (creating its next
// sink_%d pad); the following stage starts a new chain. Caps stages
// (media types containing a '/') apply their fields as output-format
// properties of the preceding element.
func Parse(description string) (*Pipeline, error) {
	p := newPipeline()

	type pendingLink struct {
		from   *Element
		target string
	}
	var pending []pendingLink
	var tail *Element
	autoIndex := make(map[string]int)

	stages := strings.Split(description, "!")
	for _, stage := range stages {
		tokens := strings.Fields(stage)
		if len(tokens) == 0 {
			continue
		}
		head := tokens[0]

		// Link reference: "sel." closes the current chain; any tokens
		// after it start the next one.
		if strings.HasSuffix(head, ".") && !strings.Contains(head, "=") {
			if tail == nil {
				return nil, fmt.Errorf("link reference %q with no upstream chain", head)
			}
			pending = append(pending, pendingLink{from: tail, target: strings.TrimSuffix(head, ".")})
			tail = nil
			tokens = tokens[1:]
			if len(tokens) == 0 {
				continue
			}
			head = tokens[0]
		}

		// Caps stage: applies to the preceding element.
		if strings.Contains(head, "/") {
			if tail == nil {
				return nil, fmt.Errorf("caps %q with no upstream element", head)
			}
			if err := applyCaps(tail, strings.Join(tokens, "")); err != nil {
				return nil, err
			}
			continue
		}

		factory := head
		newImpl, ok := factories[factory]
		if !ok {
			return nil, fmt.Errorf("unknown element factory %q", factory)
		}
		el := &Element{
			factory: factory,
			pipe:    p,
			impl:    newImpl(),
			props:   make(map[string]interface{}),
		}
		for _, tok := range tokens[1:] {
			key, val, found := strings.Cut(tok, "=")
			if !found {
				return nil, fmt.Errorf("malformed property %q on %s", tok, factory)
			}
			if key == "name" {
				el.name = val
				continue
			}
			el.props[key] = parseValue(val)
		}
		if el.name == "" {
			el.name = fmt.Sprintf("%s%d", factory, autoIndex[factory])
			autoIndex[factory]++
		}
		if err := p.addElement(el); err != nil {
			return nil, err
		}
		if tail != nil {
			link(tail, el)
		}
		tail = el
	}

	for _, pl := range pending {
		target, err := p.ByName(pl.target)
		if err != nil {
			return nil, err
		}
		link(pl.from, target)
	}
	return p, nil
}

// applyCaps parses "video/x-raw(memory:NVMM),width=(int)1920,..." and sets
// the recognized fields as properties on the upstream element.
func applyCaps(el *Element, caps string) error {
	parts := strings.Split(caps, ",")
	mediaType := parts[0]
	if i := strings.Index(mediaType, "("); i >= 0 {
		mediaType = mediaType[:i]
	}
	el.props["caps-media-type"] = mediaType
	for _, part := range parts[1:] {
		key, val, found := strings.Cut(part, "=")
		if !found {
			return fmt.Errorf("malformed caps field %q", part)
		}
		// Strip type annotations: "(int)1920", "(fraction)60/1".
		if i := strings.Index(val, ")"); strings.HasPrefix(val, "(") && i >= 0 {
			val = val[i+1:]
		}
		switch key {
		case "width", "height":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("caps %s: %w", key, err)
			}
			el.props[key] = n
		case "framerate":
			num, _, _ := strings.Cut(val, "/")
			n, err := strconv.Atoi(num)
			if err != nil {
				return fmt.Errorf("caps framerate: %w", err)
			}
			el.props["fps"] = n
		case "format":
			el.props["format"] = val
		default:
			el.props["caps-"+key] = val
		}
	}
	return nil
}

func parseValue(val string) interface{} {
	if n, err := strconv.Atoi(val); err == nil {
		return n
	}
	switch val {
	case "true":
		return true
	case "false":
		return false
	}
	return val
}
