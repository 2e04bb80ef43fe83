package postpolicy

// Form field names, case-sensitive as the storage service expects them
const (
	FieldKey         = "key"
	FieldPolicy      = "policy"
	FieldContentType = "Content-Type"
	FieldSignature   = "signature"
	FieldAccessKeyID = "AWSAccessKeyId"
	FieldACL         = "acl"
	FieldFile        = "file"
)

// FormFieldOrder is the order fields are written to the multipart form.
// The file part is always last.
var FormFieldOrder = []string{
	FieldKey,
	FieldPolicy,
	FieldContentType,
	FieldSignature,
	FieldAccessKeyID,
	FieldACL,
	FieldFile,
}

// Field is one text field of the upload form
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Upload is a signed, ready-to-submit POST-policy form
type Upload struct {
	URL       string
	Key       string
	Policy    string
	Signature string
	// Fields holds every text field in FormFieldOrder; the file part follows them.
	Fields   []Field
	Filename string
	File     []byte
}

// Values returns the text fields as a map, for JSON responses
func (u *Upload) Values() map[string]string {
	values := make(map[string]string, len(u.Fields))
	for _, f := range u.Fields {
		values[f.Name] = f.Value
	}
	return values
}

// Get returns the value of a text field
func (u *Upload) Get(name string) (string, bool) {
	for _, f := range u.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
