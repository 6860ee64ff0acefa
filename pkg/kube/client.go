package kube

import (
	"errors"
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// DefaultNamespace is used when neither flags nor the kube context set one.
const DefaultNamespace = "default"

// ErrNoClientConfig is returned when no usable kubeconfig or in-cluster
// configuration can be loaded.
var ErrNoClientConfig = errors.New("could not load Kubernetes configuration")

// Client bundles a clientset with the namespace every k8r operation targets.
// It is passed explicitly to each component.
type Client struct {
	Clientset kubernetes.Interface
	Namespace string
}

// NewClient wraps an existing clientset. An empty namespace selects
// [DefaultNamespace].
func NewClient(cs kubernetes.Interface, namespace string) *Client {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &Client{Clientset: cs, Namespace: namespace}
}

// LoadOptions configures [Load].
type LoadOptions struct {
	// Kubeconfig is an explicit kubeconfig path. Empty uses the standard
	// loading rules ($KUBECONFIG, ~/.kube/config, then in-cluster).
	Kubeconfig string
	// Context selects a kubeconfig context.
	Context string
	// Namespace overrides the namespace from the kube context.
	Namespace string
}

// Load builds a [Client] from kubeconfig (or in-cluster) configuration.
func Load(opts LoadOptions) (*Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if opts.Kubeconfig != "" {
		rules.ExplicitPath = opts.Kubeconfig
	}

	overrides := &clientcmd.ConfigOverrides{CurrentContext: opts.Context}
	cc := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)

	restConfig, err := cc.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoClientConfig, err)
	}

	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}

	ns := opts.Namespace
	if ns == "" {
		ns, _, err = cc.Namespace()
		if err != nil {
			ns = DefaultNamespace
		}
	}

	return NewClient(cs, ns), nil
}
