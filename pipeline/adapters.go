package pipeline

import (
	"context"
	"fmt"

	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/operr"
)

// NpmBuilder rebuilds the application with the environment-specific npm
// build. It backs the version rollback engine's Built transition.
type NpmBuilder struct {
	runner   Runner
	repoPath string
}

func NewNpmBuilder(runner Runner, repoPath string) *NpmBuilder {
	return &NpmBuilder{runner: runner, repoPath: repoPath}
}

func (b *NpmBuilder) Build(ctx context.Context, env config.Environment) error {
	if logPath, err := b.runner.Run(ctx, b.repoPath, "npm", "ci"); err != nil {
		return operr.Stage("build", "dependency install failed", logPath, err)
	}
	if logPath, err := b.runner.Run(ctx, b.repoPath, "npm", "run", "build:"+string(env)); err != nil {
		return operr.Stage("build", "build failed", logPath, err)
	}
	return nil
}

// BucketPublisher uploads the build directory to the environment's bucket.
// It backs the version rollback engine's Deployed transition.
type BucketPublisher struct {
	objects  ObjectStore
	registry *config.Registry
	buildDir string
}

func NewBucketPublisher(objects ObjectStore, registry *config.Registry, buildDir string) *BucketPublisher {
	return &BucketPublisher{objects: objects, registry: registry, buildDir: buildDir}
}

func (p *BucketPublisher) Publish(ctx context.Context, env config.Environment) error {
	envCfg, err := p.registry.Resolve(env)
	if err != nil {
		return err
	}
	uploaded, err := p.objects.Sync(ctx, p.buildDir, envCfg.Deployment.Bucket, "")
	if err != nil {
		return operr.Wrap(operr.StageFailure, "publish",
			fmt.Sprintf("upload to bucket %s failed", envCfg.Deployment.Bucket), err)
	}
	if uploaded == 0 {
		return operr.E(operr.StageFailure, "publish", "build directory produced no files to upload")
	}
	return nil
}
