package nbformat

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FallbackPythonMajor is used when no interpreter version is known.
const FallbackPythonMajor = 3

type codemirrorMode struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

type languageInfo struct {
	CodemirrorMode    codemirrorMode `json:"codemirror_mode"`
	FileExtension     string         `json:"file_extension"`
	Mimetype          string         `json:"mimetype"`
	Name              string         `json:"name"`
	NbconvertExporter string         `json:"nbconvert_exporter"`
	PygmentsLexer     string         `json:"pygments_lexer"`
	Version           string         `json:"version"`
}

type defaultMetadata struct {
	LanguageInfo languageInfo `json:"language_info"`
	OrigNBFormat int          `json:"orig_nbformat"`
}

// HasMetadata reports whether fields carry a metadata object.
func HasMetadata(fields *Fields) bool {
	if fields == nil {
		return false
	}
	v, ok := fields.Get(KeyMetadata)
	return ok && string(v) != "null"
}

// CodemirrorVersion returns metadata.language_info.codemirror_mode.version
// when it is a number.
func CodemirrorVersion(fields *Fields) (int, bool) {
	if fields == nil {
		return 0, false
	}
	raw, ok := fields.Get(KeyMetadata)
	if !ok {
		return 0, false
	}
	var md struct {
		LanguageInfo *struct {
			CodemirrorMode json.RawMessage `json:"codemirror_mode"`
		} `json:"language_info"`
	}
	if err := json.Unmarshal(raw, &md); err != nil || md.LanguageInfo == nil {
		return 0, false
	}
	var mode struct {
		Version json.Number `json:"version"`
	}
	if err := json.Unmarshal(md.LanguageInfo.CodemirrorMode, &mode); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(mode.Version.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

// DefaultFields returns the top-level object of a fresh notebook: nbformat
// 4.2 with python language metadata for the given major version.
func DefaultFields(pythonMajor int) (*Fields, error) {
	if pythonMajor <= 0 {
		pythonMajor = FallbackPythonMajor
	}
	md, err := marshal(defaultMetadata{
		LanguageInfo: languageInfo{
			CodemirrorMode:    codemirrorMode{Name: "ipython", Version: pythonMajor},
			FileExtension:     ".py",
			Mimetype:          "text/x-python",
			Name:              "python",
			NbconvertExporter: "python",
			PygmentsLexer:     "ipython" + strconv.Itoa(pythonMajor),
			Version:           strconv.Itoa(pythonMajor),
		},
		OrigNBFormat: 2,
	})
	if err != nil {
		return nil, err
	}
	f := NewFields()
	f.Set(KeyNBFormat, json.RawMessage("4"))
	f.Set(KeyNBFormatMinor, json.RawMessage("2"))
	f.Set(KeyMetadata, md)
	return f, nil
}

// ApplyVersion writes interpreter and kernel identity into the metadata of
// fields. language_info.version is only updated when language_info exists;
// kernelspec is created or updated when a kernel name is given.
func ApplyVersion(fields *Fields, interpreterVersion, kernelName, kernelDisplayName string) error {
	if fields == nil {
		return nil
	}
	raw, ok := fields.Get(KeyMetadata)
	if !ok || string(raw) == "null" {
		return nil
	}
	md := NewFields()
	if err := json.Unmarshal(raw, md); err != nil {
		return fmt.Errorf("nbformat: metadata: %w", err)
	}

	if interpreterVersion != "" {
		if li, ok := md.Get("language_info"); ok {
			info := NewFields()
			if err := json.Unmarshal(li, info); err == nil {
				v, err := marshal(interpreterVersion)
				if err != nil {
					return err
				}
				info.Set("version", v)
				if li, err = encodeFields(info); err != nil {
					return err
				}
				md.Set("language_info", li)
			}
		}
	}

	if kernelName != "" || kernelDisplayName != "" {
		name, display := kernelName, kernelDisplayName
		if name == "" {
			name = display
		}
		if display == "" {
			display = name
		}
		kernel := NewFields()
		if ks, ok := md.Get("kernelspec"); ok {
			_ = json.Unmarshal(ks, kernel)
		}
		nv, err := marshal(name)
		if err != nil {
			return err
		}
		dv, err := marshal(display)
		if err != nil {
			return err
		}
		kernel.Set("display_name", dv)
		kernel.Set("name", nv)
		ks, err := encodeFields(kernel)
		if err != nil {
			return err
		}
		md.Set("kernelspec", ks)
	}

	out, err := encodeFields(md)
	if err != nil {
		return err
	}
	fields.Set(KeyMetadata, out)
	return nil
}

func encodeFields(f *Fields) (json.RawMessage, error) {
	keys := make([]string, 0, f.Len())
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return writeObject(keys, func(k string) json.RawMessage {
		v, _ := f.Get(k)
		return v
	})
}
