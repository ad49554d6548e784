package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eurodatacube/edc-qgis-plugin/internal/session"
)

func (a *app) configureCmd() *cobra.Command {
	var (
		proxyEnabled bool
		proxyHost    string
		proxyPort    string
		proxyUser    string
		proxyPass    string
	)
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the service base URL, download folder and proxy settings",
		Long: `A new base URL is stored only after its instances and capabilities load;
otherwise the previous one is kept. The download folder must exist.`,
		Example: `  edc-ogc configure --url https://services.sentinel-hub.com/ogc/ --folder ~/Downloads
  edc-ogc configure --proxy --proxy-host proxy.local --proxy-port 3128`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fl := cmd.Flags()
			cur, err := a.store.Load()
			if err != nil {
				return err
			}

			proxy := cur.Proxy
			if fl.Changed("proxy") {
				proxy.Enabled = proxyEnabled
			}
			if fl.Changed("proxy-host") {
				proxy.Host = proxyHost
			}
			if fl.Changed("proxy-port") {
				proxy.Port = proxyPort
			}
			if fl.Changed("proxy-user") {
				proxy.User = proxyUser
			}
			if fl.Changed("proxy-password") {
				proxy.Password = proxyPass
			}

			dir, _ := fl.GetString("folder")
			if fl.Changed("folder") && dir != "" {
				if st, err := os.Stat(dir); err != nil || !st.IsDir() {
					return fmt.Errorf("%w: %s", session.ErrFolderNotFound, dir)
				}
			}

			// The session persists through the file alone, so values that
			// only come from the environment are never written.
			log := a.logger(cmd.ErrOrStderr())
			s, err := session.New(log, a.newExecutor(log, proxy.Config()), a.store)
			if err != nil {
				return err
			}
			if fl.Changed("url") {
				u, _ := fl.GetString("url")
				if err := s.ChangeBaseURL(ctx, u); err != nil {
					return fmt.Errorf("base url not changed: %w", err)
				}
			}
			if fl.Changed("folder") {
				if err := s.SetDownloadFolder(dir); err != nil {
					return err
				}
			}
			if proxy != cur.Proxy {
				next, err := a.store.Load()
				if err != nil {
					return err
				}
				next.Proxy = proxy
				if err := a.store.Save(next); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "settings written to %s\n", a.store.Path)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&proxyEnabled, "proxy", false, "route requests through a proxy")
	fl.StringVar(&proxyHost, "proxy-host", "", "proxy host")
	fl.StringVar(&proxyPort, "proxy-port", "", "proxy port")
	fl.StringVar(&proxyUser, "proxy-user", "", "proxy user")
	fl.StringVar(&proxyPass, "proxy-password", "", "proxy password")
	return cmd
}
