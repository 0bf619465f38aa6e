// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/promptmap/internal/config"
	"github.com/temirov/promptmap/internal/fsys"
	"github.com/temirov/promptmap/internal/services/clipboard"
	"github.com/temirov/promptmap/internal/session"
	"github.com/temirov/promptmap/internal/utils"
	"github.com/temirov/promptmap/internal/watch"
)

const (
	noIgnoreFlagName     = "no-ignore"
	maxFilesFlagName     = "max-files"
	modelFlagName        = "model"
	copyFlagName         = "copy"
	selectFlagName       = "select"
	textFlagName         = "text"
	debounceFlagName     = "debounce"
	configFlagName       = "config"
	versionFlagName      = "version"
	versionTemplate      = "promptmap version: %s\n"
	defaultPath          = "."
	rootUse              = "promptmap"
	rootShortDescription = "promptmap command line interface"
	rootLongDescription  = `promptmap assembles project context for language model prompts.
It renders directory trees as <file_map> blocks, collects file lists, and
counts tokens. Use --version to print the application version.`

	versionFlagDescription = "display application version"
	mapUse                 = "map [paths...]"
	collectUse             = "collect [paths...]"
	tokensUse              = "tokens [paths...]"
	watchUse               = "watch [paths...]"
	mapAlias               = "m"
	collectAlias           = "c"
	tokensAlias            = "t"

	mapShortDescription     = "render a file map (" + mapAlias + ")"
	collectShortDescription = "list collected files (" + collectAlias + ")"
	tokensShortDescription  = "count tokens (" + tokensAlias + ")"
	watchShortDescription   = "re-render the file map on changes"

	mapLongDescription = `Render the directory tree beneath one or more paths as a <file_map> block.
Use --select to mark a subset of files; unselected files stay visible without the marker.`
	mapUsageExample = `  # Map the current project
  promptmap map

  # Mark only source files as selected and copy the result
  promptmap map --select src/main.go --copy .`

	collectLongDescription = `List the files a map of the given paths would include, one path per line.
Ignore rules from each root's ` + utils.IgnoreFileName + ` file apply unless --no-ignore is given.`
	collectUsageExample = `  # List collected files without ignore rules
  promptmap collect --no-ignore .`

	tokensLongDescription = `Count tokens across the files collected beneath the given paths.
Use --model to select the tokenizer model and --text to tokenize a literal string instead.`
	tokensUsageExample = `  # Count tokens in the current project
  promptmap tokens

  # Tokenize a literal string
  promptmap tokens --text "hello world"`

	watchLongDescription = `Render the file map, then keep watching the given paths and re-render after
each quiet period. A change arriving mid-render cancels the stale render.`

	noIgnoreFlagDescription = "do not use " + utils.IgnoreFileName + " files"
	maxFilesFlagDescription = "maximum number of files to collect"
	modelFlagDescription    = "tokenizer model to use for token counting"
	copyFlagDescription     = "copy output to the system clipboard"
	selectFlagDescription   = "mark a file as selected in the map"
	textFlagDescription     = "tokenize a literal string instead of files"
	debounceFlagDescription = "quiet period before re-rendering"
	configFlagDescription   = "path to a configuration file"

	errorAbsolutePathFormat = "abs failed for '%s': %w"
	errorPathMissingFormat  = "path '%s' does not exist"
	errorStatFormat         = "stat failed for '%s': %w"
	errorNoValidPaths       = "no valid paths"
)

// Execute runs the promptmap application.
func Execute(logger *zap.Logger) error {
	rootCommand := createRootCommand(logger)
	return rootCommand.Execute()
}

func createRootCommand(logger *zap.Logger) *cobra.Command {
	var showVersion bool
	var configFilePath string

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Printf(versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
	}
	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.PersistentFlags().StringVar(&configFilePath, configFlagName, "", configFlagDescription)
	rootCommand.AddCommand(
		createMapCommand(logger, &configFilePath),
		createCollectCommand(logger, &configFilePath),
		createTokensCommand(logger, &configFilePath),
		createWatchCommand(logger, &configFilePath),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// traversalOptions stores flags shared by every collecting command.
type traversalOptions struct {
	disableIgnoreFile bool
	maxFiles          int
}

func addTraversalFlags(command *cobra.Command, options *traversalOptions) {
	command.Flags().BoolVar(&options.disableIgnoreFile, noIgnoreFlagName, false, noIgnoreFlagDescription)
	command.Flags().IntVar(&options.maxFiles, maxFilesFlagName, 0, maxFilesFlagDescription)
}

func createMapCommand(logger *zap.Logger, configFilePath *string) *cobra.Command {
	var traversal traversalOptions
	var selectedArguments []string
	var copyToClipboard bool

	mapCommand := &cobra.Command{
		Use:     mapUse,
		Aliases: []string{mapAlias},
		Short:   mapShortDescription,
		Long:    mapLongDescription,
		Example: mapUsageExample,
		Args:    cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			environment, environmentError := prepareEnvironment(command, *configFilePath, traversal, "", logger)
			if environmentError != nil {
				return environmentError
			}
			rootPaths, pathError := resolveAndValidatePaths(defaulted(arguments))
			if pathError != nil {
				return pathError
			}
			selectedPaths, selectError := resolveSelection(selectedArguments)
			if selectError != nil {
				return selectError
			}

			rendered := environment.workSession.FileMap(command.Context(), rootPaths, environment.useIgnoreRules, selectedPaths)
			fmt.Println(rendered)
			return maybeCopy(command, copyToClipboard, environment.applicationConfiguration, rendered)
		},
	}

	addTraversalFlags(mapCommand, &traversal)
	mapCommand.Flags().StringArrayVar(&selectedArguments, selectFlagName, nil, selectFlagDescription)
	mapCommand.Flags().BoolVar(&copyToClipboard, copyFlagName, false, copyFlagDescription)
	return mapCommand
}

func createCollectCommand(logger *zap.Logger, configFilePath *string) *cobra.Command {
	var traversal traversalOptions
	var copyToClipboard bool

	collectCommand := &cobra.Command{
		Use:     collectUse,
		Aliases: []string{collectAlias},
		Short:   collectShortDescription,
		Long:    collectLongDescription,
		Example: collectUsageExample,
		Args:    cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			environment, environmentError := prepareEnvironment(command, *configFilePath, traversal, "", logger)
			if environmentError != nil {
				return environmentError
			}
			rootPaths, pathError := resolveAndValidatePaths(defaulted(arguments))
			if pathError != nil {
				return pathError
			}

			collected := environment.workSession.CollectFiles(command.Context(), rootPaths, environment.useIgnoreRules)
			var listing strings.Builder
			for _, filePath := range collected {
				listing.WriteString(filePath)
				listing.WriteString("\n")
				fmt.Println(filePath)
			}
			return maybeCopy(command, copyToClipboard, environment.applicationConfiguration, listing.String())
		},
	}

	addTraversalFlags(collectCommand, &traversal)
	collectCommand.Flags().BoolVar(&copyToClipboard, copyFlagName, false, copyFlagDescription)
	return collectCommand
}

func createTokensCommand(logger *zap.Logger, configFilePath *string) *cobra.Command {
	var traversal traversalOptions
	var tokenizerModel string
	var literalText string

	tokensCommand := &cobra.Command{
		Use:     tokensUse,
		Aliases: []string{tokensAlias},
		Short:   tokensShortDescription,
		Long:    tokensLongDescription,
		Example: tokensUsageExample,
		Args:    cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			environment, environmentError := prepareEnvironment(command, *configFilePath, traversal, tokenizerModel, logger)
			if environmentError != nil {
				return environmentError
			}

			if command.Flags().Changed(textFlagName) {
				fmt.Println(environment.workSession.CountText(literalText))
				return nil
			}

			rootPaths, pathError := resolveAndValidatePaths(defaulted(arguments))
			if pathError != nil {
				return pathError
			}
			collected := environment.workSession.CollectFiles(command.Context(), rootPaths, environment.useIgnoreRules)
			total := environment.workSession.CountTokens(command.Context(), collected)
			fmt.Printf("%d tokens across %d files (model %s)\n", total, len(collected), environment.workSession.Model())
			return nil
		},
	}

	addTraversalFlags(tokensCommand, &traversal)
	tokensCommand.Flags().StringVar(&tokenizerModel, modelFlagName, "", modelFlagDescription)
	tokensCommand.Flags().StringVar(&literalText, textFlagName, "", textFlagDescription)
	return tokensCommand
}

func createWatchCommand(logger *zap.Logger, configFilePath *string) *cobra.Command {
	var traversal traversalOptions
	var debounce time.Duration

	watchCommand := &cobra.Command{
		Use:   watchUse,
		Short: watchShortDescription,
		Long:  watchLongDescription,
		Args:  cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			environment, environmentError := prepareEnvironment(command, *configFilePath, traversal, "", logger)
			if environmentError != nil {
				return environmentError
			}
			rootPaths, pathError := resolveAndValidatePaths(defaulted(arguments))
			if pathError != nil {
				return pathError
			}
			if !command.Flags().Changed(debounceFlagName) {
				if configured := environment.applicationConfiguration.Watch.DebounceMilliseconds; configured != nil {
					debounce = time.Duration(*configured) * time.Millisecond
				}
			}

			return runWatch(command.Context(), environment, rootPaths, debounce, logger)
		},
	}

	addTraversalFlags(watchCommand, &traversal)
	watchCommand.Flags().DurationVar(&debounce, debounceFlagName, watch.DefaultDebounce, debounceFlagDescription)
	return watchCommand
}

func runWatch(
	ctx context.Context,
	environment *commandEnvironment,
	rootPaths []string,
	debounce time.Duration,
	logger *zap.Logger,
) error {
	signalContext, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderOnce := func(renderContext context.Context) {
		rendered := environment.workSession.FileMap(renderContext, rootPaths, environment.useIgnoreRules, nil)
		if renderContext.Err() != nil {
			return
		}
		fmt.Println(rendered)
	}

	renderOnce(signalContext)

	runner := watch.NewRunner(debounce, func(runContext context.Context, sequence uint64) {
		renderOnce(runContext)
	})
	watcher, watcherError := watch.NewWatcher(runner, logger)
	if watcherError != nil {
		return watcherError
	}
	for _, rootPath := range rootPaths {
		if addError := watcher.AddRoot(rootPath); addError != nil {
			return addError
		}
	}

	if runError := watcher.Run(signalContext); runError != nil && signalContext.Err() == nil {
		return runError
	}
	return nil
}

// commandEnvironment bundles per-invocation state resolved from flags and
// configuration files.
type commandEnvironment struct {
	workSession              *session.Session
	useIgnoreRules           bool
	applicationConfiguration config.ApplicationConfiguration
}

func prepareEnvironment(
	command *cobra.Command,
	configFilePath string,
	traversal traversalOptions,
	tokenizerModel string,
	logger *zap.Logger,
) (*commandEnvironment, error) {
	applicationConfiguration, configurationError := config.LoadApplicationConfiguration(config.LoadOptions{
		ExplicitFilePath: configFilePath,
	})
	if configurationError != nil {
		return nil, configurationError
	}

	limits := session.DefaultLimits()
	limitConfiguration := applicationConfiguration.Limits
	if limitConfiguration.MaxFiles != nil {
		limits.MaxFiles = *limitConfiguration.MaxFiles
	}
	if limitConfiguration.PreviewBytes != nil {
		limits.PreviewByteLimit = *limitConfiguration.PreviewBytes
	}
	if limitConfiguration.CacheCapacity != nil {
		limits.CacheCapacity = *limitConfiguration.CacheCapacity
	}
	if limitConfiguration.FilesystemConcurrency != nil {
		limits.FilesystemConcurrency = *limitConfiguration.FilesystemConcurrency
	}
	if limitConfiguration.TokenizeConcurrency != nil {
		limits.TokenizeConcurrency = *limitConfiguration.TokenizeConcurrency
	}
	if command.Flags().Changed(maxFilesFlagName) && traversal.maxFiles > 0 {
		limits.MaxFiles = traversal.maxFiles
	}

	model := tokenizerModel
	if model == "" {
		model = applicationConfiguration.Tokens.Model
	}

	useIgnoreRules := true
	if applicationConfiguration.Paths.UseIgnoreFile != nil {
		useIgnoreRules = *applicationConfiguration.Paths.UseIgnoreFile
	}
	if traversal.disableIgnoreFile {
		useIgnoreRules = false
	}

	workSession, sessionError := session.New(fsys.NewOSFileSystem(), logger, limits, model)
	if sessionError != nil {
		return nil, sessionError
	}
	return &commandEnvironment{
		workSession:              workSession,
		useIgnoreRules:           useIgnoreRules,
		applicationConfiguration: applicationConfiguration,
	}, nil
}

func maybeCopy(command *cobra.Command, copyFlag bool, applicationConfiguration config.ApplicationConfiguration, text string) error {
	copyRequested := copyFlag
	if !command.Flags().Changed(copyFlagName) && applicationConfiguration.Clipboard != nil {
		copyRequested = *applicationConfiguration.Clipboard
	}
	if !copyRequested {
		return nil
	}
	return clipboard.NewService().Copy(text)
}

func defaulted(arguments []string) []string {
	if len(arguments) == 0 {
		return []string{defaultPath}
	}
	return arguments
}

func resolveSelection(selectedArguments []string) (map[string]bool, error) {
	if len(selectedArguments) == 0 {
		return nil, nil
	}
	selectedPaths := make(map[string]bool, len(selectedArguments))
	for _, selectedArgument := range selectedArguments {
		absolutePath, absoluteError := filepath.Abs(selectedArgument)
		if absoluteError != nil {
			return nil, fmt.Errorf(errorAbsolutePathFormat, selectedArgument, absoluteError)
		}
		selectedPaths[filepath.Clean(absolutePath)] = true
	}
	return selectedPaths, nil
}

// resolveAndValidatePaths converts input paths to absolute form and validates
// their existence.
func resolveAndValidatePaths(inputs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var result []string
	for _, inputPath := range inputs {
		absolutePath, absolutePathError := filepath.Abs(inputPath)
		if absolutePathError != nil {
			return nil, fmt.Errorf(errorAbsolutePathFormat, inputPath, absolutePathError)
		}
		cleanPath := filepath.Clean(absolutePath)
		if _, ok := seen[cleanPath]; ok {
			continue
		}
		if _, fileStatusError := os.Stat(cleanPath); fileStatusError != nil {
			if os.IsNotExist(fileStatusError) {
				return nil, fmt.Errorf(errorPathMissingFormat, inputPath)
			}
			return nil, fmt.Errorf(errorStatFormat, inputPath, fileStatusError)
		}
		seen[cleanPath] = struct{}{}
		result = append(result, cleanPath)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf(errorNoValidPaths)
	}
	return result, nil
}
