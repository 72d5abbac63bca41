package main

import (
	_ "net/http/pprof"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pikapool/pikapool-api/cmd/bidd/service"
	"github.com/pikapool/pikapool-api/cmd/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/cli"
)

var (
	daemonName = "bidd"
	log        = logging.Logger(daemonName)
	v          = viper.New()
)

func init() {
	flags := []common.Flag{
		{Name: "http-addr", DefValue: ":8080", Description: "HTTP API listen address"},
		{Name: "redis-url", DefValue: "", Description: "Redis URL of the auction state cache"},
		{Name: "postgres-uri", DefValue: "", Description: "PostgreSQL URI"},
		{Name: "gpubsub-project-id", DefValue: "", Description: "Google PubSub project id"},
		{Name: "gpubsub-api-key", DefValue: "", Description: "Google PubSub API key"},
		{Name: "msgbroker-topic-prefix", DefValue: "", Description: "Topic prefix to use for msg broker topics"},
		{Name: "metrics-addr", DefValue: ":9090", Description: "Prometheus listen address"},
		{Name: "lambda", DefValue: false, Description: "Serve AWS Lambda API Gateway events instead of HTTP"},
		{Name: "env-file", DefValue: ".env", Description: "File with environment variables to load"},
		{Name: "log-debug", DefValue: false, Description: "Enable debug level logging"},
		{Name: "log-json", DefValue: false, Description: "Enable structured logging"},
	}

	common.ConfigureCLI(v, "BIDD", flags, rootCmd.Flags())
}

var rootCmd = &cobra.Command{
	Use:   daemonName,
	Short: "bidd admits signed bids to Pikapool auctions",
	Long:  `bidd verifies EIP-712 signed bids against the auction state and stores the admitted ones`,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		err := common.LoadEnvFile(v.GetString("env-file"))
		cli.CheckErrf("loading env file: %v", err)
		common.ExpandEnvVars(v, v.AllSettings())
		err = common.ConfigureLogging(v, nil)
		cli.CheckErrf("setting log levels: %v", err)
	},
	Run: func(c *cobra.Command, args []string) {
		settings, err := common.MarshalConfig(v, !v.GetBool("log-json"), "postgres-uri", "redis-url", "gpubsub-api-key")
		cli.CheckErr(err)
		log.Infof("loaded config: %s", string(settings))

		lambdaMode := v.GetBool("lambda") || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
		if !lambdaMode {
			if err := common.SetupInstrumentation(v.GetString("metrics-addr")); err != nil {
				log.Fatalf("booting instrumentation: %s", err)
			}
		}

		config := service.Config{
			RedisURL:             v.GetString("redis-url"),
			PostgresURI:          v.GetString("postgres-uri"),
			GPubsubProjectID:     v.GetString("gpubsub-project-id"),
			GPubsubAPIKey:        v.GetString("gpubsub-api-key"),
			MsgBrokerTopicPrefix: v.GetString("msgbroker-topic-prefix"),
		}
		if !lambdaMode {
			config.HTTPListenAddr = v.GetString("http-addr")
		}
		serv, err := service.New(config)
		cli.CheckErr(err)

		if lambdaMode {
			log.Info("serving lambda invocations")
			lambda.Start(httpadapter.NewV2(serv.Handler()).ProxyWithContext)
			return
		}

		cli.HandleInterrupt(func() {
			if err := serv.Close(); err != nil {
				log.Errorf("closing service: %s", err)
			}
		})
	},
}

func main() {
	cli.CheckErr(rootCmd.Execute())
}
