package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		names []string
		want  []string
	}{
		{
			name:  "separate value",
			args:  []string{"-a", "http://api.test", "-p", "3000"},
			names: []string{"a"},
			want:  []string{"-a", "http://api.test"},
		},
		{
			name:  "equals form keeps a single arg",
			args:  []string{"--config=alt.yaml", "-t", "5"},
			names: []string{"c", "config"},
			want:  []string{"--config=alt.yaml"},
		},
		{
			name:  "dashed names are accepted",
			args:  []string{"-t", "5"},
			names: []string{"-t"},
			want:  []string{"-t", "5"},
		},
		{
			name:  "order preserved",
			args:  []string{"-e", "127.0.0.1:3001", "-x", "1", "-p", "3000"},
			names: []string{"p", "e"},
			want:  []string{"-e", "127.0.0.1:3001", "-p", "3000"},
		},
		{
			name:  "boolean flag followed by another flag",
			args:  []string{"-r", "-p", "3000"},
			names: []string{"r", "p"},
			want:  []string{"-r", "-p", "3000"},
		},
		{
			name:  "positionals and unknown flags dropped",
			args:  []string{"serve", "-y=2", "-zz", "v"},
			names: []string{"c"},
			want:  []string{},
		},
		{
			name:  "trailing flag without value",
			args:  []string{"-p", "3000", "-c"},
			names: []string{"c"},
			want:  []string{"-c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.names...))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "app.yaml", ConfigPath([]string{"-p", "3000", "-c", "app.yaml"}))
	assert.Equal(t, "app.json", ConfigPath([]string{"--config=app.json"}))
	assert.Equal(t, "", ConfigPath([]string{"-p", "3000"}))
	assert.Equal(t, "", ConfigPath(nil))
}

func TestConfigFileFlag(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })

	os.Args = []string{"server", "-config", "conf.yml", "-a", ":8080"}
	assert.Equal(t, "conf.yml", ConfigFileFlag())
}
