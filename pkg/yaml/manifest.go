package yaml

import (
	"bytes"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"

	sigsyaml "sigs.k8s.io/yaml"
)

// DocumentSeparator separates documents in a multi-document stream.
const DocumentSeparator = "---\n"

// MarshalManifests renders objs as a multi-document YAML stream. Objects are
// copied and their apiVersion and kind are filled in from the client-go
// scheme, since typed objects built in code leave TypeMeta empty.
func MarshalManifests(objs ...runtime.Object) ([]byte, error) {
	var buf bytes.Buffer

	for _, obj := range objs {
		if obj == nil {
			continue
		}

		out := obj.DeepCopyObject()

		gvks, _, err := scheme.Scheme.ObjectKinds(out)
		if err != nil {
			return nil, fmt.Errorf("resolve object kind: %w", err)
		}

		out.GetObjectKind().SetGroupVersionKind(gvks[0])

		data, err := sigsyaml.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", gvks[0].Kind, err)
		}

		if buf.Len() > 0 {
			buf.WriteString(DocumentSeparator)
		}

		buf.Write(data)
	}

	return buf.Bytes(), nil
}
