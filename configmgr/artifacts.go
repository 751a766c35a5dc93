package configmgr

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/tradewatch/deployctl/config"
)

// Artifact generation is a pure function of the environment document: the
// same EnvironmentConfig always renders byte-identical output, so re-running
// generate is idempotent and artifacts can be diffed across backups.

// sizing is the per-environment process-manager scaling.
type sizing struct {
	Instances   int
	MaxMemoryMB int
}

func sizingFor(env config.Environment) sizing {
	switch env {
	case config.Production:
		return sizing{Instances: 4, MaxMemoryMB: 1024}
	case config.Staging:
		return sizing{Instances: 2, MaxMemoryMB: 512}
	default:
		return sizing{Instances: 1, MaxMemoryMB: 256}
	}
}

// ArtifactPaths returns the relative paths of the three generated artifacts
// for env, in generation order.
func ArtifactPaths(env config.Environment) []string {
	return []string{
		filepath.Join("nginx", string(env)+".conf"),
		filepath.Join("pm2", "ecosystem."+string(env)+".config.js"),
		filepath.Join("docker", "docker-compose."+string(env)+".yml"),
	}
}

// GenerateArtifacts renders the reverse-proxy, process-manager, and
// container-topology artifacts from the environment document alone.
func GenerateArtifacts(env config.Environment, cfg *config.EnvironmentConfig) (map[string][]byte, error) {
	artifacts := make(map[string][]byte)
	paths := ArtifactPaths(env)

	nginx, err := renderNginx(env, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render nginx config: %w", err)
	}
	artifacts[paths[0]] = nginx

	pm2, err := renderPM2(env, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render pm2 config: %w", err)
	}
	artifacts[paths[1]] = pm2

	compose, err := renderCompose(env, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render compose topology: %w", err)
	}
	artifacts[paths[2]] = compose

	return artifacts, nil
}

var nginxTemplate = template.Must(template.New("nginx").Parse(`# Generated by deployctl for {{.Env}}. Do not edit by hand.
server {
    listen 443 ssl http2;
    server_name {{.Host}};

    ssl_certificate     /etc/ssl/{{.Host}}/fullchain.pem;
    ssl_certificate_key /etc/ssl/{{.Host}}/privkey.pem;
    ssl_protocols       TLSv1.2 TLSv1.3;

    add_header Strict-Transport-Security "max-age=31536000; includeSubDomains" always;
    add_header X-Content-Type-Options nosniff always;
    add_header X-Frame-Options DENY always;
    add_header Referrer-Policy strict-origin-when-cross-origin always;

    location /api/ {
        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
{{if .WebSocketEnabled}}
    location /ws/ {
        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }
{{end}}
    location / {
        root {{.AppPath}};
        try_files $uri $uri/ /index.html;
    }
}

server {
    listen 80;
    server_name {{.Host}};
    return 301 https://$host$request_uri;
}
`))

func renderNginx(env config.Environment, cfg *config.EnvironmentConfig) ([]byte, error) {
	appPath := cfg.Deployment.AppPath
	if appPath == "" {
		appPath = "/var/www/" + string(env)
	}
	data := struct {
		Env              config.Environment
		Host             string
		Port             int
		AppPath          string
		WebSocketEnabled bool
	}{env, cfg.Server.Host, cfg.Server.Port, appPath, cfg.WebSocket.Enabled}

	var buf bytes.Buffer
	if err := nginxTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var pm2Template = template.Must(template.New("pm2").Parse(`// Generated by deployctl for {{.Env}}. Do not edit by hand.
module.exports = {
  apps: [
    {
      name: "dashboard-api-{{.Env}}",
      script: "server.js",
      instances: {{.Instances}},
      exec_mode: "cluster",
      max_memory_restart: "{{.MaxMemoryMB}}M",
      env: {
        NODE_ENV: "{{.Env}}",
        PORT: {{.Port}},
        LOG_LEVEL: "{{.LogLevel}}"
      }
    }
  ]
};
`))

func renderPM2(env config.Environment, cfg *config.EnvironmentConfig) ([]byte, error) {
	s := sizingFor(env)
	data := struct {
		Env         config.Environment
		Instances   int
		MaxMemoryMB int
		Port        int
		LogLevel    string
	}{env, s.Instances, s.MaxMemoryMB, cfg.Server.Port, cfg.Logging.Level}

	var buf bytes.Buffer
	if err := pm2Template.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// compose topology types. yaml.Marshal sorts map keys, so output stays
// deterministic for a given input.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
	Volumes  map[string]struct{}       `yaml:"volumes,omitempty"`
}

type composeService struct {
	Image       string            `yaml:"image"`
	Restart     string            `yaml:"restart"`
	Ports       []string          `yaml:"ports,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
}

func renderCompose(env config.Environment, cfg *config.EnvironmentConfig) ([]byte, error) {
	s := sizingFor(env)

	topology := composeFile{
		Services: map[string]composeService{
			"api": {
				Image:   "dashboard-api:" + string(env),
				Restart: "unless-stopped",
				Ports:   []string{fmt.Sprintf("%d:%d", cfg.Server.Port, cfg.Server.Port)},
				Environment: map[string]string{
					"NODE_ENV":  string(env),
					"MONGO_URI": cfg.Database.URI,
					"LOG_LEVEL": cfg.Logging.Level,
					"INSTANCES": fmt.Sprintf("%d", s.Instances),
				},
				DependsOn: []string{"mongo", "redis"},
			},
			"mongo": {
				Image:   "mongo:6",
				Restart: "unless-stopped",
				Volumes: []string{"mongo-data:/data/db"},
			},
			"redis": {
				Image:   "redis:7-alpine",
				Restart: "unless-stopped",
			},
		},
		Volumes: map[string]struct{}{"mongo-data": {}},
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("# Generated by deployctl for %s. Do not edit by hand.\n", env))
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(topology); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
